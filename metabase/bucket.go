// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package metabase

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shellnoq/hafiz/s3"
	"github.com/shellnoq/hafiz/storage"
)

// Bucket is a bucket's metadata record. The policy document is stored
// wholesale and replaced wholesale.
type Bucket struct {
	Name       string                     `json:"name"`
	CreatedAt  time.Time                  `json:"created_at"`
	Versioning s3.VersioningState         `json:"versioning,omitempty"`
	ObjectLock s3.ObjectLockConfiguration `json:"object_lock"`
	Policy     json.RawMessage            `json:"policy,omitempty"`
}

// CreateBucket creates a bucket. Enabling object lock is only possible
// here and forces versioning on.
func (db *DB) CreateBucket(ctx context.Context, name string, lock s3.ObjectLockConfiguration) (_ Bucket, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := validateBucketName(name); err != nil {
		return Bucket{}, err
	}
	if err := lock.Validate(); err != nil {
		return Bucket{}, err
	}

	bucket := Bucket{
		Name:       name,
		CreatedAt:  db.now().UTC(),
		ObjectLock: lock,
	}
	if lock.Enabled {
		bucket.Versioning = s3.VersioningEnabled
	}

	value, err := encodeRecord(bucket)
	if err != nil {
		return Bucket{}, err
	}
	err = db.kv.CompareAndSwap(ctx, bucketKey(name), nil, value)
	if err != nil {
		if storage.ErrValueChanged.Has(err) {
			return Bucket{}, s3.ErrBucketAlreadyExists.New("%s", name)
		}
		return Bucket{}, Error.Wrap(err)
	}

	db.log.Debug("bucket created",
		zap.String("bucket", name),
		zap.Bool("object lock", lock.Enabled))
	mon.Meter("bucket_create").Mark(1)
	return bucket, nil
}

// GetBucket returns the bucket record.
func (db *DB) GetBucket(ctx context.Context, name string) (_ Bucket, err error) {
	defer mon.Task()(&ctx)(&err)

	raw, err := db.kv.Get(ctx, bucketKey(name))
	if err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return Bucket{}, s3.ErrNoSuchBucket.New("%s", name)
		}
		return Bucket{}, Error.Wrap(err)
	}
	var bucket Bucket
	if err := decodeRecord(raw, &bucket); err != nil {
		return Bucket{}, err
	}
	return bucket, nil
}

// ListBuckets returns every bucket record in name order.
func (db *DB) ListBuckets(ctx context.Context) (buckets []Bucket, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.kv.Iterate(ctx, storage.IterateOptions{Prefix: storage.Key(bucketKeyPrefix)}, func(ctx context.Context, it storage.Iterator) error {
		var item storage.ListItem
		for it.Next(ctx, &item) {
			var bucket Bucket
			if err := decodeRecord(item.Value, &bucket); err != nil {
				return err
			}
			buckets = append(buckets, bucket)
		}
		return nil
	})
	return buckets, Error.Wrap(err)
}

// DeleteBucket removes an empty bucket. Buckets still holding version
// chains or in-progress uploads refuse with BucketNotEmpty.
func (db *DB) DeleteBucket(ctx context.Context, name string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := db.GetBucket(ctx, name); err != nil {
		return err
	}

	found, err := db.hasAnyKey(ctx, chainPrefix(name))
	if err != nil {
		return err
	}
	if found {
		return s3.ErrBucketNotEmpty.New("bucket %s still has objects", name)
	}
	found, err = db.hasAnyKey(ctx, uploadPrefix(name))
	if err != nil {
		return err
	}
	if found {
		return s3.ErrBucketNotEmpty.New("bucket %s still has in-progress uploads", name)
	}

	if err := db.kv.Delete(ctx, bucketKey(name)); err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return s3.ErrNoSuchBucket.New("%s", name)
		}
		return Error.Wrap(err)
	}

	db.log.Debug("bucket deleted", zap.String("bucket", name))
	mon.Meter("bucket_delete").Mark(1)
	return nil
}

// SetBucketVersioning configures versioning. A lock-enabled bucket cannot
// leave the Enabled state.
func (db *DB) SetBucketVersioning(ctx context.Context, name string, state s3.VersioningState) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := state.Validate(); err != nil {
		return err
	}
	return db.updateBucket(ctx, name, func(bucket *Bucket) error {
		if bucket.ObjectLock.Enabled && !state.Enabled() {
			return s3.ErrInvalidBucketState.New("versioning cannot be suspended while object lock is enabled")
		}
		bucket.Versioning = state
		return nil
	})
}

// GetBucketVersioning reports the bucket's versioning state.
func (db *DB) GetBucketVersioning(ctx context.Context, name string) (_ s3.VersioningState, err error) {
	defer mon.Task()(&ctx)(&err)

	bucket, err := db.GetBucket(ctx, name)
	if err != nil {
		return "", err
	}
	return bucket.Versioning, nil
}

// PutBucketPolicy replaces the bucket's policy document. The document must
// already be validated; only well-formedness is checked here.
func (db *DB) PutBucketPolicy(ctx context.Context, name string, policyJSON []byte) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !json.Valid(policyJSON) {
		return s3.ErrMalformedPolicy.New("policy is not valid JSON")
	}
	return db.updateBucket(ctx, name, func(bucket *Bucket) error {
		bucket.Policy = append(json.RawMessage(nil), policyJSON...)
		return nil
	})
}

// GetBucketPolicy returns the stored policy document.
func (db *DB) GetBucketPolicy(ctx context.Context, name string) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	bucket, err := db.GetBucket(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(bucket.Policy) == 0 {
		return nil, s3.ErrNoSuchBucketPolicy.New("%s", name)
	}
	return bucket.Policy, nil
}

// DeleteBucketPolicy removes the policy document. Removing an absent
// policy succeeds.
func (db *DB) DeleteBucketPolicy(ctx context.Context, name string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return db.updateBucket(ctx, name, func(bucket *Bucket) error {
		bucket.Policy = nil
		return nil
	})
}

// updateBucket applies mutate to the bucket record under a
// compare-and-swap loop.
func (db *DB) updateBucket(ctx context.Context, name string, mutate func(bucket *Bucket) error) error {
	storageKey := bucketKey(name)
	for {
		raw, err := db.kv.Get(ctx, storageKey)
		if err != nil {
			if storage.ErrKeyNotFound.Has(err) {
				return s3.ErrNoSuchBucket.New("%s", name)
			}
			return Error.Wrap(err)
		}
		var bucket Bucket
		if err := decodeRecord(raw, &bucket); err != nil {
			return err
		}
		if err := mutate(&bucket); err != nil {
			return err
		}
		value, err := encodeRecord(bucket)
		if err != nil {
			return err
		}

		err = db.kv.CompareAndSwap(ctx, storageKey, raw, value)
		switch {
		case err == nil:
			return nil
		case storage.ErrValueChanged.Has(err), storage.ErrKeyNotFound.Has(err):
			continue
		default:
			return Error.Wrap(err)
		}
	}
}

// hasAnyKey reports whether any key with the prefix exists.
func (db *DB) hasAnyKey(ctx context.Context, prefix storage.Key) (found bool, err error) {
	err = db.kv.Iterate(ctx, storage.IterateOptions{Prefix: prefix}, func(ctx context.Context, it storage.Iterator) error {
		var item storage.ListItem
		found = it.Next(ctx, &item)
		return nil
	})
	return found, Error.Wrap(err)
}

// validateBucketName enforces the S3 naming rules: 3 to 63 characters of
// lowercase letters, digits, hyphens and dots, starting and ending
// alphanumeric, with no empty dot-separated label and no IPv4 shape.
func validateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return s3.ErrInvalidBucketName.New("name must be 3 to 63 characters")
	}
	if !isAlnum(name[0]) || !isAlnum(name[len(name)-1]) {
		return s3.ErrInvalidBucketName.New("name must start and end with a letter or digit")
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; !isAlnum(c) && c != '-' && c != '.' {
			return s3.ErrInvalidBucketName.New("name contains %q", string(c))
		}
	}
	for _, seq := range []string{"..", ".-", "-."} {
		if strings.Contains(name, seq) {
			return s3.ErrInvalidBucketName.New("name contains %q", seq)
		}
	}
	if net.ParseIP(name) != nil {
		return s3.ErrInvalidBucketName.New("name must not be an IP address")
	}
	return nil
}

func isAlnum(c byte) bool {
	return 'a' <= c && c <= 'z' || '0' <= c && c <= '9'
}

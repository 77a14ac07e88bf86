// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package metabase

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/shellnoq/hafiz/s3"
)

// PutObjectParams collects the inputs of a PutObject.
type PutObjectParams struct {
	Bucket string
	Key    string
	Body   io.Reader

	UserMetadata map[string]string
	// Retention overrides the bucket's default retention. Requires the
	// bucket to have object lock enabled.
	Retention s3.Retention
	// LegalHold places the new version under legal hold immediately.
	// Requires object lock as well.
	LegalHold s3.LegalHoldStatus
}

// PutObject streams the body into the blob store and appends the new
// version to the key's chain. With versioning enabled every put is a new
// version; otherwise the put replaces the null version, subject to the
// lock check on whatever it replaces.
func (db *DB) PutObject(ctx context.Context, params PutObjectParams) (_ ObjectVersion, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := validateObjectKey(params.Key); err != nil {
		return ObjectVersion{}, err
	}
	bucket, err := db.GetBucket(ctx, params.Bucket)
	if err != nil {
		return ObjectVersion{}, err
	}

	now := db.now().UTC()
	if params.Retention.Enabled() || params.LegalHold != "" {
		if !bucket.ObjectLock.Enabled {
			return ObjectVersion{}, s3.ErrInvalidArgument.New("bucket %s does not have object lock enabled", params.Bucket)
		}
		if err := params.Retention.Validate(); err != nil {
			return ObjectVersion{}, err
		}
		if params.Retention.Enabled() && !params.Retention.RetainUntil.After(now) {
			return ObjectVersion{}, s3.ErrInvalidArgument.New("retain until date must be in the future")
		}
		if params.LegalHold != "" {
			if err := params.LegalHold.Validate(); err != nil {
				return ObjectVersion{}, err
			}
		}
	}

	body := params.Body
	if body == nil {
		body = bytes.NewReader(nil)
	}
	hasher := md5.New()
	contentID, size, err := db.blobs.Put(ctx, io.TeeReader(body, hasher))
	if err != nil {
		return ObjectVersion{}, Error.Wrap(err)
	}

	retention := params.Retention
	if !retention.Enabled() {
		retention = bucket.ObjectLock.DefaultVersionRetention(now)
	}

	version := ObjectVersion{
		Bucket:       params.Bucket,
		Key:          params.Key,
		IsLatest:     true,
		VersionID:    s3.NullVersionID,
		ETag:         hex.EncodeToString(hasher.Sum(nil)),
		Size:         size,
		ContentID:    contentID,
		CreatedAt:    now,
		Retention:    retention,
		LegalHold:    params.LegalHold,
		UserMetadata: params.UserMetadata,
	}
	if bucket.Versioning.Enabled() {
		version.VersionID = newID(now)
	}

	err = db.updateChain(ctx, params.Bucket, params.Key, func(chain *chainRecord) error {
		if !bucket.Versioning.Enabled() {
			if i := chain.find(s3.NullVersionID); i >= 0 {
				if err := MayDeleteOrOverwrite(chain.Versions[i], now, false); err != nil {
					return err
				}
				chain.remove(i)
			}
		}
		chain.insertLatest(version)
		return nil
	})
	if err != nil {
		return ObjectVersion{}, err
	}

	db.log.Debug("object put",
		zap.String("bucket", params.Bucket),
		zap.String("key", params.Key),
		zap.String("version", version.VersionID),
		zap.Int64("size", size))
	mon.Meter("object_put").Mark(1)
	mon.IntVal("object_put_size").Observe(size)
	return version, nil
}

// DeleteObjectOptions control a DeleteObject.
type DeleteObjectOptions struct {
	// VersionID selects a specific version for physical removal. Empty
	// means the logical delete of the key.
	VersionID string
	// BypassGovernance applies the governance bypass permission to the
	// lock check. The caller must have verified the permission.
	BypassGovernance bool
}

// DeleteObjectResult reports what a DeleteObject did.
type DeleteObjectResult struct {
	// Marker is the delete marker the operation wrote, if any.
	Marker *ObjectVersion
	// Removed is the version the operation physically removed, if any.
	Removed *ObjectVersion
}

// DeleteObject deletes a key logically or a version physically. Without a
// version id: versioning enabled appends a delete marker; suspended
// replaces the null slot with a null delete marker; unversioned buckets
// remove the implicit version. With a version id the named version is
// removed and the next most recent one becomes latest within the same
// swap. Every destructive path runs the lock check first.
func (db *DB) DeleteObject(ctx context.Context, bucket, key string, opts DeleteObjectOptions) (result DeleteObjectResult, err error) {
	defer mon.Task()(&ctx)(&err)

	record, err := db.GetBucket(ctx, bucket)
	if err != nil {
		return DeleteObjectResult{}, err
	}
	now := db.now().UTC()

	if opts.VersionID != "" {
		err = db.updateChain(ctx, bucket, key, func(chain *chainRecord) error {
			result = DeleteObjectResult{}
			i := chain.find(opts.VersionID)
			if i < 0 {
				// deletes are idempotent, an unknown version is a no-op
				return errChainUnchanged
			}
			if err := MayDeleteOrOverwrite(chain.Versions[i], now, opts.BypassGovernance); err != nil {
				return err
			}
			removed := chain.Versions[i]
			chain.remove(i)
			result.Removed = &removed
			return nil
		})
		if err != nil {
			return DeleteObjectResult{}, err
		}
		mon.Meter("object_delete_version").Mark(1)
		return result, nil
	}

	marker := ObjectVersion{
		Bucket:         bucket,
		Key:            key,
		IsLatest:       true,
		VersionID:      s3.NullVersionID,
		IsDeleteMarker: true,
		CreatedAt:      now,
	}
	if record.Versioning.Enabled() {
		marker.VersionID = newID(now)
	}

	err = db.updateChain(ctx, bucket, key, func(chain *chainRecord) error {
		result = DeleteObjectResult{}
		if record.Versioning.Enabled() {
			chain.insertLatest(marker)
			result.Marker = &marker
			return nil
		}
		if i := chain.find(s3.NullVersionID); i >= 0 {
			if err := MayDeleteOrOverwrite(chain.Versions[i], now, opts.BypassGovernance); err != nil {
				return err
			}
			removed := chain.Versions[i]
			chain.remove(i)
			result.Removed = &removed
		}
		if record.Versioning.Suspended() {
			chain.insertLatest(marker)
			result.Marker = &marker
		}
		if result.Marker == nil && result.Removed == nil {
			return errChainUnchanged
		}
		return nil
	})
	if err != nil {
		return DeleteObjectResult{}, err
	}
	mon.Meter("object_delete").Mark(1)
	return result, nil
}

// GetLatest returns the key's latest version. A missing chain and a
// delete-marked key both report NoSuchKey; in the marker case the marker
// itself is returned alongside the error so callers can surface its
// version id.
func (db *DB) GetLatest(ctx context.Context, bucket, key string) (_ ObjectVersion, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := db.GetBucket(ctx, bucket); err != nil {
		return ObjectVersion{}, err
	}
	chain, err := db.getChain(ctx, bucket, key)
	if err != nil {
		return ObjectVersion{}, err
	}
	latest := chain.Versions[0]
	if latest.IsDeleteMarker {
		return latest, s3.ErrNoSuchKey.New("%s/%s is delete marked", bucket, key)
	}
	return latest, nil
}

// GetVersion returns one specific version of the key, delete markers
// included.
func (db *DB) GetVersion(ctx context.Context, bucket, key, versionID string) (_ ObjectVersion, err error) {
	defer mon.Task()(&ctx)(&err)

	if versionID == "" {
		return ObjectVersion{}, s3.ErrInvalidArgument.New("version id is empty")
	}
	if _, err := db.GetBucket(ctx, bucket); err != nil {
		return ObjectVersion{}, err
	}
	chain, err := db.getChain(ctx, bucket, key)
	if err != nil {
		return ObjectVersion{}, err
	}
	i := chain.find(versionID)
	if i < 0 {
		return ObjectVersion{}, s3.ErrNoSuchKey.New("%s/%s version %s", bucket, key, versionID)
	}
	return chain.Versions[i], nil
}

// OpenObject opens the version's content for reading.
func (db *DB) OpenObject(ctx context.Context, version ObjectVersion) (_ io.ReadCloser, err error) {
	defer mon.Task()(&ctx)(&err)

	if version.IsDeleteMarker {
		return nil, s3.ErrMethodNotAllowed.New("delete markers have no content")
	}
	reader, err := db.blobs.Open(ctx, version.ContentID)
	return reader, Error.Wrap(err)
}

// validateObjectKey bounds keys the way the wire protocol does and keeps
// the record separator out of the key space.
func validateObjectKey(key string) error {
	switch {
	case key == "":
		return s3.ErrInvalidArgument.New("object key is empty")
	case len(key) > 1024:
		return s3.ErrInvalidArgument.New("object key exceeds 1024 bytes")
	case strings.ContainsRune(key, 0):
		return s3.ErrInvalidArgument.New("object key contains a NUL byte")
	}
	return nil
}

// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package metabase

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/zeebo/errs"

	"github.com/shellnoq/hafiz/s3"
	"github.com/shellnoq/hafiz/storage"
)

// ObjectVersion is one entry of a key's version chain. Bucket, Key and
// IsLatest are positional facts filled in when the chain is read; only the
// remaining fields persist in the record.
type ObjectVersion struct {
	Bucket   string `json:"-"`
	Key      string `json:"-"`
	IsLatest bool   `json:"-"`

	VersionID      string             `json:"version_id"`
	IsDeleteMarker bool               `json:"is_delete_marker,omitempty"`
	ETag           string             `json:"etag,omitempty"`
	Size           int64              `json:"size,omitempty"`
	ContentID      storage.ContentID  `json:"content_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	Retention      s3.Retention       `json:"retention"`
	LegalHold      s3.LegalHoldStatus `json:"legal_hold,omitempty"`
	UserMetadata   map[string]string  `json:"user_metadata,omitempty"`
	SourceUploadID string             `json:"source_upload_id,omitempty"`
}

// chainRecord is the persisted version chain of one (bucket, key), newest
// first. The latest version is the head; an empty chain is a deleted
// record, never a stored empty list.
type chainRecord struct {
	Versions []ObjectVersion `json:"versions"`
}

// materialize fills in the positional fields for callers.
func (chain *chainRecord) materialize(bucket, key string) {
	for i := range chain.Versions {
		chain.Versions[i].Bucket = bucket
		chain.Versions[i].Key = key
		chain.Versions[i].IsLatest = i == 0
	}
}

func (chain *chainRecord) find(versionID string) int {
	for i := range chain.Versions {
		if chain.Versions[i].VersionID == versionID {
			return i
		}
	}
	return -1
}

// insertLatest puts the version at the head of the chain.
func (chain *chainRecord) insertLatest(version ObjectVersion) {
	chain.Versions = append([]ObjectVersion{version}, chain.Versions...)
}

func (chain *chainRecord) remove(index int) {
	chain.Versions = append(chain.Versions[:index], chain.Versions[index+1:]...)
}

// newID generates a chain-unique, time-ordered id: big-endian nanoseconds
// followed by random bytes, hex encoded, so byte order equals creation
// order. Version ids and upload ids share the scheme.
func newID(now time.Time) string {
	var raw [16]byte
	binary.BigEndian.PutUint64(raw[:8], uint64(now.UnixNano()))
	if _, err := rand.Read(raw[8:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(raw[:])
}

// errChainUnchanged signals updateChain that the mutation decided to keep
// the record exactly as read; the update reports success without a write.
var errChainUnchanged = errs.New("chain unchanged")

// updateChain applies mutate to the chain of (bucket, key) with per-key
// linearization: a striped mutex serializes this process and a
// compare-and-swap on the record guards against anything else touching the
// store. The chain passed to mutate is already materialized; an error from
// mutate aborts the update and is returned as-is. A chain left empty is
// deleted.
func (db *DB) updateChain(ctx context.Context, bucket, key string, mutate func(chain *chainRecord) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	unlock := db.chainLocks.Lock(bucket, key)
	defer unlock()

	storageKey := chainKey(bucket, key)
	for {
		old, err := db.kv.Get(ctx, storageKey)
		exists := true
		if err != nil {
			if !storage.ErrKeyNotFound.Has(err) {
				return Error.Wrap(err)
			}
			exists, old = false, nil
		}

		var chain chainRecord
		if exists {
			if err := decodeRecord(old, &chain); err != nil {
				return err
			}
			chain.materialize(bucket, key)
		}

		if err := mutate(&chain); err != nil {
			if errors.Is(err, errChainUnchanged) {
				return nil
			}
			return err
		}

		var replacement storage.Value
		if len(chain.Versions) > 0 {
			replacement, err = encodeRecord(chain)
			if err != nil {
				return err
			}
		}
		if replacement == nil && !exists {
			return nil
		}

		err = db.kv.CompareAndSwap(ctx, storageKey, old, replacement)
		switch {
		case err == nil:
			return nil
		case storage.ErrValueChanged.Has(err), storage.ErrKeyNotFound.Has(err):
			// lost a race against another writer of the same store
			continue
		default:
			return Error.Wrap(err)
		}
	}
}

// getChain reads and materializes the chain of (bucket, key).
func (db *DB) getChain(ctx context.Context, bucket, key string) (chainRecord, error) {
	var chain chainRecord
	raw, err := db.kv.Get(ctx, chainKey(bucket, key))
	if err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return chain, s3.ErrNoSuchKey.New("%s/%s", bucket, key)
		}
		return chain, Error.Wrap(err)
	}
	if err := decodeRecord(raw, &chain); err != nil {
		return chain, err
	}
	if len(chain.Versions) == 0 {
		return chain, s3.ErrNoSuchKey.New("%s/%s", bucket, key)
	}
	chain.materialize(bucket, key)
	return chain, nil
}

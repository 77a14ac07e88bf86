// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package metabase keeps every durable record of the system: buckets,
// per-key version chains, multipart uploads with their parts, and
// credentials. Records live in an ordered key-value store; content bytes
// live in a blob store and are referenced by content id.
package metabase

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/shellnoq/hafiz/storage"
	"github.com/shellnoq/hafiz/storage/boltdb"
	"github.com/shellnoq/hafiz/storage/redis"
	"github.com/shellnoq/hafiz/storage/sqlitekv"
	"github.com/shellnoq/hafiz/storage/teststore"
)

var (
	// Error is the default metabase error class.
	Error = errs.Class("metabase")

	mon = monkit.Package()
)

// Config holds the tunables of the metabase.
type Config struct {
	MinPartSize int64 `help:"minimum size of every non-final multipart part" default:"5242880"`
}

// DB is the metadata database. All mutations of a version chain are
// linearized per (bucket, key) and all upload terminal transitions per
// (bucket, upload id), each through its own stripe set so an operation
// holding both cannot alias itself.
type DB struct {
	log    *zap.Logger
	kv     storage.KeyValueStore
	blobs  storage.Blobs
	config Config

	chainLocks  *keyLocks
	uploadLocks *keyLocks

	now func() time.Time
}

// New constructs a DB over an opened key-value store and blob store.
func New(log *zap.Logger, kv storage.KeyValueStore, blobs storage.Blobs, config Config) *DB {
	if config.MinPartSize <= 0 {
		config.MinPartSize = 5 * 1024 * 1024
	}
	return &DB{
		log:    log,
		kv:     kv,
		blobs:  blobs,
		config: config,

		chainLocks:  newKeyLocks(lockStripes),
		uploadLocks: newKeyLocks(lockStripes),

		now: time.Now,
	}
}

// Open constructs a DB over the key-value store named by dburl. Supported
// schemes are bolt://, sqlite://, redis:// and mem://.
func Open(ctx context.Context, log *zap.Logger, dburl string, blobs storage.Blobs, config Config) (*DB, error) {
	parsed, err := url.Parse(dburl)
	if err != nil {
		return nil, Error.New("invalid database url %q: %v", dburl, err)
	}

	var kv storage.KeyValueStore
	switch parsed.Scheme {
	case "bolt":
		kv, err = boltdb.New(parsed.Host+parsed.Path, "metabase")
	case "sqlite":
		kv, err = sqlitekv.New(parsed.Host + parsed.Path)
	case "redis":
		kv, err = redis.NewClientFrom(dburl)
	case "mem":
		kv = teststore.New()
	default:
		return nil, Error.New("unsupported database scheme %q", parsed.Scheme)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return New(log.Named("metabase"), kv, blobs, config), nil
}

// Close releases the underlying key-value store.
func (db *DB) Close() error {
	return Error.Wrap(db.kv.Close())
}

// TestingSetNow overrides the clock.
func (db *DB) TestingSetNow(now func() time.Time) {
	db.now = now
}

// Record key families. The 0x00 separator sorts before any character that
// may appear in a bucket name, object key or generated id, so iterating a
// family prefix yields exactly that family in byte order.
const (
	bucketKeyPrefix     = "b\x00"
	chainKeyPrefix      = "o\x00"
	uploadKeyPrefix     = "u\x00"
	partKeyPrefix       = "p\x00"
	credentialKeyPrefix = "c\x00"

	keySeparator = "\x00"
)

func bucketKey(bucket string) storage.Key {
	return storage.Key(bucketKeyPrefix + bucket)
}

func chainKey(bucket, key string) storage.Key {
	return storage.Key(chainKeyPrefix + bucket + keySeparator + key)
}

func chainPrefix(bucket string) storage.Key {
	return storage.Key(chainKeyPrefix + bucket + keySeparator)
}

func uploadKey(bucket, key, uploadID string) storage.Key {
	return storage.Key(uploadKeyPrefix + bucket + keySeparator + key + keySeparator + uploadID)
}

func uploadPrefix(bucket string) storage.Key {
	return storage.Key(uploadKeyPrefix + bucket + keySeparator)
}

func partKey(bucket, uploadID string, partNumber int) storage.Key {
	return storage.Key(partKeyPrefix + bucket + keySeparator + uploadID + keySeparator + formatPartNumber(partNumber))
}

func partPrefix(bucket, uploadID string) storage.Key {
	return storage.Key(partKeyPrefix + bucket + keySeparator + uploadID + keySeparator)
}

func credentialKey(accessKeyID string) storage.Key {
	return storage.Key(credentialKeyPrefix + accessKeyID)
}

func encodeRecord(record interface{}) (storage.Value, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return storage.Value(data), nil
}

func decodeRecord(data storage.Value, record interface{}) error {
	return Error.Wrap(json.Unmarshal([]byte(data), record))
}

// clampLimit bounds a client-requested listing limit to 1..=LookupLimit.
func clampLimit(limit int) int {
	if limit <= 0 || limit > storage.LookupLimit {
		return storage.LookupLimit
	}
	return limit
}

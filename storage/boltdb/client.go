// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package boltdb implements a KeyValueStore backed by a single bolt file.
package boltdb

import (
	"bytes"
	"context"
	"time"

	"github.com/boltdb/bolt"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/shellnoq/hafiz/storage"
)

var mon = monkit.Package()

// Error is the default boltdb error class.
var Error = errs.Class("boltdb error")

// Client is the entrypoint into a bolt data store.
type Client struct {
	db     *bolt.DB
	Path   string
	Bucket []byte
}

const (
	// fileMode sets permissions so owner can read and write.
	fileMode       = 0600
	defaultTimeout = 1 * time.Second
)

// New instantiates a new bolt client given db file path and a bucket name.
func New(path, bucket string) (*Client, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, Error.Wrap(errs.Combine(err, db.Close()))
	}

	return &Client{
		db:     db,
		Path:   path,
		Bucket: []byte(bucket),
	}, nil
}

func (client *Client) update(fn func(*bolt.Bucket) error) error {
	return Error.Wrap(client.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(client.Bucket))
	}))
}

func (client *Client) view(fn func(*bolt.Bucket) error) error {
	return Error.Wrap(client.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(client.Bucket))
	}))
}

// Put saves the value under the key.
func (client *Client) Put(ctx context.Context, key storage.Key, value storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	return client.update(func(bucket *bolt.Bucket) error {
		return bucket.Put(key, value)
	})
}

// Get looks up the value for the key.
func (client *Client) Get(ctx context.Context, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}

	var value storage.Value
	err = client.view(func(bucket *bolt.Bucket) error {
		data := bucket.Get(key)
		if len(data) == 0 {
			return storage.ErrKeyNotFound.New("%s", key)
		}
		value = storage.CloneValue(storage.Value(data))
		return nil
	})
	return value, err
}

// GetAll returns values aligned with keys; missing keys yield nil.
func (client *Client) GetAll(ctx context.Context, keys storage.Keys) (_ storage.Values, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(keys) > storage.LookupLimit {
		return nil, storage.ErrLimitExceeded
	}

	values := storage.Values{}
	err = client.view(func(bucket *bolt.Bucket) error {
		for _, key := range keys {
			data := bucket.Get(key)
			if len(data) == 0 {
				values = append(values, nil)
				continue
			}
			values = append(values, storage.CloneValue(storage.Value(data)))
		}
		return nil
	})
	return values, err
}

// Delete removes the key.
func (client *Client) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	return client.update(func(bucket *bolt.Bucket) error {
		if len(bucket.Get(key)) == 0 {
			return storage.ErrKeyNotFound.New("%s", key)
		}
		return bucket.Delete(key)
	})
}

// CompareAndSwap atomically replaces oldValue with newValue inside a
// single write transaction.
func (client *Client) CompareAndSwap(ctx context.Context, key storage.Key, oldValue, newValue storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	return client.update(func(bucket *bolt.Bucket) error {
		data := bucket.Get(key)
		if len(data) == 0 {
			if oldValue != nil {
				return storage.ErrKeyNotFound.New("%s", key)
			}
			if newValue == nil {
				return nil
			}
			return bucket.Put(key, newValue)
		}

		if !bytes.Equal(data, oldValue) {
			return storage.ErrValueChanged.New("%s", key)
		}
		if newValue == nil {
			return bucket.Delete(key)
		}
		return bucket.Put(key, newValue)
	})
}

// Iterate iterates the selected keys inside a read transaction.
func (client *Client) Iterate(ctx context.Context, opts storage.IterateOptions, fn func(context.Context, storage.Iterator) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	return client.view(func(bucket *bolt.Bucket) error {
		start := opts.Prefix
		if start.Less(opts.First) {
			start = opts.First
		}
		return fn(ctx, &cursorIterator{
			cursor: bucket.Cursor(),
			prefix: opts.Prefix,
			start:  start,
		})
	})
}

// Close closes the bolt database.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}

// cursorIterator walks a bolt cursor forward from start, stopping when
// keys leave the prefix. Items are valid only inside the transaction.
type cursorIterator struct {
	cursor  *bolt.Cursor
	prefix  storage.Key
	start   storage.Key
	started bool
}

func (it *cursorIterator) Next(ctx context.Context, item *storage.ListItem) bool {
	var key, value []byte
	if !it.started {
		it.started = true
		if it.start.IsZero() {
			key, value = it.cursor.First()
		} else {
			key, value = it.cursor.Seek(it.start)
		}
	} else {
		key, value = it.cursor.Next()
	}

	if key == nil {
		return false
	}
	if !it.prefix.IsZero() && !storage.HasPrefix(storage.Key(key), it.prefix) {
		return false
	}

	item.Key = storage.CloneKey(storage.Key(key))
	item.Value = storage.CloneValue(storage.Value(value))
	return true
}

// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package storelogger implements a KeyValueStore decorator that logs
// every call for debugging.
package storelogger

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"github.com/shellnoq/hafiz/storage"
)

var mon = monkit.Package()

var id int64

// Logger implements a zap.Logger decorator for a storage.KeyValueStore.
type Logger struct {
	log   *zap.Logger
	store storage.KeyValueStore
}

// New creates a new Logger with log and store.
func New(log *zap.Logger, store storage.KeyValueStore) *Logger {
	loggerid := atomic.AddInt64(&id, 1)
	name := strconv.Itoa(int(loggerid))
	return &Logger{log.Named(name), store}
}

// Put saves the value under the key.
func (store *Logger) Put(ctx context.Context, key storage.Key, value storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Put", zap.ByteString("key", key), zap.Int("value length", len(value)))
	return store.store.Put(ctx, key, value)
}

// Get looks up the value for the key.
func (store *Logger) Get(ctx context.Context, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Get", zap.ByteString("key", key))
	return store.store.Get(ctx, key)
}

// GetAll returns values aligned with keys.
func (store *Logger) GetAll(ctx context.Context, keys storage.Keys) (_ storage.Values, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("GetAll", zap.Int("keys", len(keys)))
	return store.store.GetAll(ctx, keys)
}

// Delete removes the key.
func (store *Logger) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Delete", zap.ByteString("key", key))
	return store.store.Delete(ctx, key)
}

// CompareAndSwap atomically replaces oldValue with newValue.
func (store *Logger) CompareAndSwap(ctx context.Context, key storage.Key, oldValue, newValue storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("CompareAndSwap", zap.ByteString("key", key),
		zap.Int("old length", len(oldValue)), zap.Int("new length", len(newValue)))
	return store.store.CompareAndSwap(ctx, key, oldValue, newValue)
}

// Iterate iterates the selected keys.
func (store *Logger) Iterate(ctx context.Context, opts storage.IterateOptions, fn func(context.Context, storage.Iterator) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Iterate",
		zap.ByteString("prefix", opts.Prefix),
		zap.ByteString("first", opts.First),
	)
	return store.store.Iterate(ctx, opts, func(ctx context.Context, it storage.Iterator) error {
		return fn(ctx, storeLoggerIterator{store: store, Iterator: it})
	})
}

// Close closes the underlying store.
func (store *Logger) Close() error {
	store.log.Debug("Close")
	return store.store.Close()
}

type storeLoggerIterator struct {
	store *Logger
	storage.Iterator
}

func (it storeLoggerIterator) Next(ctx context.Context, item *storage.ListItem) bool {
	ok := it.Iterator.Next(ctx, item)
	if ok {
		it.store.log.Debug("  ", zap.ByteString("key", item.Key))
	}
	return ok
}

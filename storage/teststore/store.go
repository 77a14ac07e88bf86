// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package teststore implements an in-memory key-value store for testing.
package teststore

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/zeebo/errs"

	"github.com/shellnoq/hafiz/storage"
)

var errForced = errs.New("forced error")

// Client implements storage.KeyValueStore in memory.
type Client struct {
	mu sync.Mutex

	Items []storage.ListItem
	// ForceError fails the next ForceError calls.
	ForceError int

	CallCount struct {
		Get            int
		Put            int
		GetAll         int
		Delete         int
		CompareAndSwap int
		Iterate        int
		Close          int
	}
}

// New creates a new in-memory key-value store.
func New() *Client { return &Client{} }

func (store *Client) forcedError() bool {
	if store.ForceError > 0 {
		store.ForceError--
		return true
	}
	return false
}

// indexOf finds the position of key, or where it would be inserted.
func (store *Client) indexOf(key storage.Key) (int, bool) {
	i := sort.Search(len(store.Items), func(k int) bool {
		return !store.Items[k].Key.Less(key)
	})
	if i >= len(store.Items) {
		return i, false
	}
	return i, store.Items[i].Key.Equal(key)
}

// Put sets the value for the key.
func (store *Client) Put(ctx context.Context, key storage.Key, value storage.Value) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Put++
	if store.forcedError() {
		return errForced
	}
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	store.put(key, value)
	return nil
}

func (store *Client) put(key storage.Key, value storage.Value) {
	index, found := store.indexOf(key)
	if found {
		store.Items[index].Value = storage.CloneValue(value)
		return
	}

	store.Items = append(store.Items, storage.ListItem{})
	copy(store.Items[index+1:], store.Items[index:])
	store.Items[index] = storage.ListItem{
		Key:   storage.CloneKey(key),
		Value: storage.CloneValue(value),
	}
}

// Get returns the value for the key.
func (store *Client) Get(ctx context.Context, key storage.Key) (storage.Value, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Get++
	if store.forcedError() {
		return nil, errForced
	}
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}

	index, found := store.indexOf(key)
	if !found {
		return nil, storage.ErrKeyNotFound.New("%s", key)
	}
	return storage.CloneValue(store.Items[index].Value), nil
}

// GetAll returns values aligned with keys; missing keys yield nil.
func (store *Client) GetAll(ctx context.Context, keys storage.Keys) (storage.Values, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.GetAll++
	if len(keys) > storage.LookupLimit {
		return nil, storage.ErrLimitExceeded
	}
	if store.forcedError() {
		return nil, errForced
	}

	values := storage.Values{}
	for _, key := range keys {
		index, found := store.indexOf(key)
		if found {
			values = append(values, storage.CloneValue(store.Items[index].Value))
		} else {
			values = append(values, nil)
		}
	}
	return values, nil
}

// Delete removes the key.
func (store *Client) Delete(ctx context.Context, key storage.Key) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Delete++
	if store.forcedError() {
		return errForced
	}
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	index, found := store.indexOf(key)
	if !found {
		return storage.ErrKeyNotFound.New("%s", key)
	}
	copy(store.Items[index:], store.Items[index+1:])
	store.Items = store.Items[:len(store.Items)-1]
	return nil
}

// CompareAndSwap atomically replaces oldValue with newValue.
func (store *Client) CompareAndSwap(ctx context.Context, key storage.Key, oldValue, newValue storage.Value) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.CompareAndSwap++
	if store.forcedError() {
		return errForced
	}
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	index, found := store.indexOf(key)
	if !found {
		if oldValue != nil {
			return storage.ErrKeyNotFound.New("%s", key)
		}
		if newValue == nil {
			return nil
		}
		store.put(key, newValue)
		return nil
	}

	if oldValue == nil {
		return storage.ErrValueChanged.New("%s", key)
	}
	if !bytes.Equal(store.Items[index].Value, oldValue) {
		return storage.ErrValueChanged.New("%s", key)
	}

	if newValue == nil {
		copy(store.Items[index:], store.Items[index+1:])
		store.Items = store.Items[:len(store.Items)-1]
		return nil
	}
	store.Items[index].Value = storage.CloneValue(newValue)
	return nil
}

// Iterate iterates over a snapshot of the selected items.
func (store *Client) Iterate(ctx context.Context, opts storage.IterateOptions, fn func(context.Context, storage.Iterator) error) error {
	store.mu.Lock()
	store.CallCount.Iterate++
	if store.forcedError() {
		store.mu.Unlock()
		return errForced
	}
	selected := storage.SelectItems(store.Items, opts)
	snapshot := make([]storage.ListItem, len(selected))
	for i, item := range selected {
		snapshot[i] = storage.ListItem{
			Key:   storage.CloneKey(item.Key),
			Value: storage.CloneValue(item.Value),
		}
	}
	store.mu.Unlock()

	return fn(ctx, &storage.StaticIterator{Items: snapshot})
}

// Close closes the store.
func (store *Client) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Close++
	if store.forcedError() {
		return errForced
	}
	return nil
}

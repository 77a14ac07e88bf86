// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package storage declares the key-value and blob capabilities the rest of
// the system builds on. Implementations live in the subpackages.
package storage

import (
	"bytes"
	"context"

	"github.com/zeebo/errs"
)

// LookupLimit is the maximum number of keys a single GetAll may request.
const LookupLimit = 1000

// Errors shared by every store implementation.
var (
	// ErrKeyNotFound is returned when a key has no value.
	ErrKeyNotFound = errs.Class("key not found")
	// ErrEmptyKey is returned when an operation names the empty key.
	ErrEmptyKey = errs.Class("empty key")
	// ErrValueChanged is returned by CompareAndSwap when the stored value
	// no longer matches the expected one.
	ErrValueChanged = errs.Class("value changed")
	// ErrLimitExceeded is returned when a batch request is over LookupLimit.
	ErrLimitExceeded = errs.New("requested more than limit items")
)

// Key is the type for the keys in a KeyValueStore.
type Key []byte

// Value is the type for the values in a KeyValueStore.
type Value []byte

// Keys is a slice of keys.
type Keys []Key

// Values is a slice of values.
type Values []Value

// ListItem is one key/value pair yielded by iteration.
type ListItem struct {
	Key   Key
	Value Value
}

// IterateOptions selects the keys an iteration visits: every key with the
// given prefix, in ascending byte order, starting at First when it is set.
type IterateOptions struct {
	Prefix Key
	First  Key
}

// Iterator yields items in ascending key order.
type Iterator interface {
	// Next fills in the next item and reports whether one was available.
	Next(ctx context.Context, item *ListItem) bool
}

// KeyValueStore is a durable ordered key-value store. CompareAndSwap is the
// per-key atomic primitive the metadata layer's consistency rests on.
type KeyValueStore interface {
	// Put sets a value for the key.
	Put(ctx context.Context, key Key, value Value) error
	// Get returns the value for the key, or ErrKeyNotFound.
	Get(ctx context.Context, key Key) (Value, error)
	// GetAll returns values aligned with keys; missing keys yield nil.
	GetAll(ctx context.Context, keys Keys) (Values, error)
	// Delete removes the key, or returns ErrKeyNotFound.
	Delete(ctx context.Context, key Key) error
	// CompareAndSwap atomically replaces oldValue with newValue. A nil
	// oldValue asserts the key does not exist yet; a nil newValue deletes.
	// A stale oldValue yields ErrValueChanged; a non-nil oldValue for a
	// missing key yields ErrKeyNotFound.
	CompareAndSwap(ctx context.Context, key Key, oldValue, newValue Value) error
	// Iterate calls fn with an iterator over the selected keys.
	Iterate(ctx context.Context, opts IterateOptions, fn func(context.Context, Iterator) error) error
	// Close closes the store.
	Close() error
}

// IsZero returns true when the key is empty.
func (key Key) IsZero() bool { return len(key) == 0 }

// IsZero returns true when the value is empty.
func (value Value) IsZero() bool { return len(value) == 0 }

// Less compares keys in byte order.
func (key Key) Less(other Key) bool { return bytes.Compare(key, other) < 0 }

// Equal reports whether the keys are byte-equal.
func (key Key) Equal(other Key) bool { return bytes.Equal(key, other) }

// String implements the Stringer interface.
func (key Key) String() string { return string(key) }

// CloneKey creates a copy of key.
func CloneKey(key Key) Key { return append(Key{}, key...) }

// CloneValue creates a copy of value.
func CloneValue(value Value) Value { return append(Value{}, value...) }

// AfterPrefix returns the smallest key greater than every key with the
// given prefix, or nil when no such key exists.
func AfterPrefix(prefix Key) Key {
	after := CloneKey(prefix)
	for i := len(after) - 1; i >= 0; i-- {
		after[i]++
		if after[i] != 0 {
			return after[:i+1]
		}
	}
	return nil
}

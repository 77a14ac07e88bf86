// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package testsuite contains a suite of tests every KeyValueStore
// implementation must pass.
package testsuite

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellnoq/hafiz/internal/testcontext"
	"github.com/shellnoq/hafiz/storage"
)

// RunTests runs the key-value store test suite against store.
func RunTests(t *testing.T, store storage.KeyValueStore) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, store) })
	t.Run("Constraints", func(t *testing.T) { testConstraints(t, store) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, store) })
	t.Run("Iterate", func(t *testing.T) { testIterate(t, store) })
	t.Run("Parallel", func(t *testing.T) { testParallel(t, store) })
}

func newItem(key, value string) storage.ListItem {
	return storage.ListItem{
		Key:   storage.Key(key),
		Value: storage.Value(value),
	}
}

func cleanupItems(t *testing.T, ctx *testcontext.Context, store storage.KeyValueStore, items []storage.ListItem) {
	t.Helper()
	for _, item := range items {
		err := store.Delete(ctx, item.Key)
		if err != nil && !storage.ErrKeyNotFound.Has(err) {
			t.Fatalf("cleanup %q: %v", item.Key, err)
		}
	}
}

func testCRUD(t *testing.T, store storage.KeyValueStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	items := []storage.ListItem{
		newItem("crud/0", "zero"),
		newItem("crud/1", "one"),
		newItem("crud/SLASH/sub", "slashed"),
		newItem("crud/\x00\xff", "binary"),
		newItem("crud/über", "unicode"),
	}
	defer cleanupItems(t, ctx, store, items)

	for _, item := range items {
		require.NoError(t, store.Put(ctx, item.Key, item.Value), "put %q", item.Key)
	}

	for _, item := range items {
		value, err := store.Get(ctx, item.Key)
		require.NoError(t, err, "get %q", item.Key)
		require.Equal(t, item.Value, value, "get %q", item.Key)
	}

	keys := storage.Keys{items[0].Key, storage.Key("crud/missing"), items[2].Key}
	values, err := store.GetAll(ctx, keys)
	require.NoError(t, err)
	require.Len(t, values, 3)
	require.Equal(t, items[0].Value, values[0])
	require.Nil(t, values[1])
	require.Equal(t, items[2].Value, values[2])

	// overwrite
	require.NoError(t, store.Put(ctx, items[0].Key, storage.Value("rewritten")))
	value, err := store.Get(ctx, items[0].Key)
	require.NoError(t, err)
	require.Equal(t, storage.Value("rewritten"), value)

	for _, item := range items {
		require.NoError(t, store.Delete(ctx, item.Key), "delete %q", item.Key)
	}
	for _, item := range items {
		_, err := store.Get(ctx, item.Key)
		require.True(t, storage.ErrKeyNotFound.Has(err), "get after delete %q: %v", item.Key, err)
	}
}

func testConstraints(t *testing.T, store storage.KeyValueStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	err := store.Put(ctx, nil, storage.Value("empty key"))
	require.True(t, storage.ErrEmptyKey.Has(err), "put empty key: %v", err)

	_, err = store.Get(ctx, storage.Key("constraints/missing"))
	require.True(t, storage.ErrKeyNotFound.Has(err), "get missing: %v", err)

	err = store.Delete(ctx, storage.Key("constraints/missing"))
	require.True(t, storage.ErrKeyNotFound.Has(err), "delete missing: %v", err)

	keys := make(storage.Keys, storage.LookupLimit+1)
	for i := range keys {
		keys[i] = storage.Key("constraints/" + strconv.Itoa(i))
	}
	_, err = store.GetAll(ctx, keys)
	require.Error(t, err, "getall over limit")
}

func testCompareAndSwap(t *testing.T, store storage.KeyValueStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key := storage.Key("cas/counter")
	defer cleanupItems(t, ctx, store, []storage.ListItem{{Key: key}})

	// create
	require.NoError(t, store.CompareAndSwap(ctx, key, nil, storage.Value("v1")))

	// duplicate create fails
	err := store.CompareAndSwap(ctx, key, nil, storage.Value("v2"))
	require.True(t, storage.ErrValueChanged.Has(err), "duplicate create: %v", err)

	// swap
	require.NoError(t, store.CompareAndSwap(ctx, key, storage.Value("v1"), storage.Value("v2")))

	// stale swap fails
	err = store.CompareAndSwap(ctx, key, storage.Value("v1"), storage.Value("v3"))
	require.True(t, storage.ErrValueChanged.Has(err), "stale swap: %v", err)

	// swap on a missing key fails
	err = store.CompareAndSwap(ctx, storage.Key("cas/missing"), storage.Value("v1"), storage.Value("v2"))
	require.True(t, storage.ErrKeyNotFound.Has(err), "missing swap: %v", err)

	// delete via nil newValue
	require.NoError(t, store.CompareAndSwap(ctx, key, storage.Value("v2"), nil))
	_, err = store.Get(ctx, key)
	require.True(t, storage.ErrKeyNotFound.Has(err), "get after cas delete: %v", err)
}

func testIterate(t *testing.T, store storage.KeyValueStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	items := []storage.ListItem{
		newItem("iterate/a", "a"),
		newItem("iterate/b/1", "b1"),
		newItem("iterate/b/2", "b2"),
		newItem("iterate/c", "c"),
		newItem("iterates", "outside"),
	}
	defer cleanupItems(t, ctx, store, items)

	for _, item := range items {
		require.NoError(t, store.Put(ctx, item.Key, item.Value))
	}

	check := func(opts storage.IterateOptions, expected []storage.ListItem) {
		t.Helper()
		var collected []storage.ListItem
		err := store.Iterate(ctx, opts, func(ctx context.Context, it storage.Iterator) error {
			var item storage.ListItem
			for it.Next(ctx, &item) {
				collected = append(collected, storage.ListItem{
					Key:   storage.CloneKey(item.Key),
					Value: storage.CloneValue(item.Value),
				})
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, expected, collected)
	}

	check(storage.IterateOptions{Prefix: storage.Key("iterate/")},
		[]storage.ListItem{items[0], items[1], items[2], items[3]})

	check(storage.IterateOptions{Prefix: storage.Key("iterate/b/")},
		[]storage.ListItem{items[1], items[2]})

	check(storage.IterateOptions{Prefix: storage.Key("iterate/"), First: storage.Key("iterate/b/2")},
		[]storage.ListItem{items[2], items[3]})

	// First before the prefix starts from the prefix
	check(storage.IterateOptions{Prefix: storage.Key("iterate/"), First: storage.Key("aaa")},
		[]storage.ListItem{items[0], items[1], items[2], items[3]})

	// no matches
	check(storage.IterateOptions{Prefix: storage.Key("iterate/zzz")}, nil)
}

func testParallel(t *testing.T, store storage.KeyValueStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key := storage.Key("parallel/counter")
	defer cleanupItems(t, ctx, store, []storage.ListItem{{Key: key}})

	const workers = 4
	const increments = 25

	increment := func() error {
		for {
			value, err := store.Get(ctx, key)
			if storage.ErrKeyNotFound.Has(err) {
				err := store.CompareAndSwap(ctx, key, nil, storage.Value("1"))
				if storage.ErrValueChanged.Has(err) {
					continue
				}
				return err
			}
			if err != nil {
				return err
			}

			current, err := strconv.Atoi(string(value))
			if err != nil {
				return err
			}
			next := storage.Value(strconv.Itoa(current + 1))
			err = store.CompareAndSwap(ctx, key, value, next)
			if storage.ErrValueChanged.Has(err) || storage.ErrKeyNotFound.Has(err) {
				continue
			}
			return err
		}
	}

	for worker := 0; worker < workers; worker++ {
		ctx.Go(func() error {
			for i := 0; i < increments; i++ {
				if err := increment(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	ctx.Wait()

	value, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(workers*increments), string(value))
}

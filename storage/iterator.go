// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package storage

import "context"

// StaticIterator implements an iterator over a slice of items.
type StaticIterator struct {
	Items []ListItem
	Index int
}

// Next implements the Iterator interface.
func (it *StaticIterator) Next(ctx context.Context, item *ListItem) bool {
	if it.Index >= len(it.Items) {
		return false
	}
	*item = it.Items[it.Index]
	it.Index++
	return true
}

// SelectItems filters an ordered snapshot of items down to the ones an
// iteration with the given options visits. Stores without native range
// scans build their Iterate on it.
func SelectItems(items []ListItem, opts IterateOptions) []ListItem {
	selected := make([]ListItem, 0, len(items))
	for _, item := range items {
		if len(opts.Prefix) > 0 && !HasPrefix(item.Key, opts.Prefix) {
			continue
		}
		if len(opts.First) > 0 && item.Key.Less(opts.First) {
			continue
		}
		selected = append(selected, item)
	}
	return selected
}

// HasPrefix reports whether the key starts with prefix.
func HasPrefix(key, prefix Key) bool {
	return len(key) >= len(prefix) && key[:len(prefix)].Equal(prefix)
}

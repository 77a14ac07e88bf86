// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package gateway

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shellnoq/hafiz/metabase"
	"github.com/shellnoq/hafiz/pkg/policy"
	"github.com/shellnoq/hafiz/s3"
)

// policyCache memoizes parsed policy documents per bucket. Lookups read
// an immutable snapshot; updates copy the whole map, so evaluation never
// blocks on a policy write. Absence is cached too, since most buckets
// carry no policy at all.
type policyCache struct {
	db *metabase.DB

	mu       sync.Mutex
	gen      uint64
	snapshot atomic.Value // map[string]*policy.Document
}

func newPolicyCache(db *metabase.DB) *policyCache {
	cache := &policyCache{db: db}
	cache.snapshot.Store(map[string]*policy.Document{})
	return cache
}

// get returns the bucket's parsed policy, nil when the bucket has none or
// does not exist. Missing buckets intentionally read as policy-less: the
// implicit ruling then denies everyone but the owner, so probing a bucket
// name never reveals whether it exists.
func (cache *policyCache) get(ctx context.Context, bucket string) (*policy.Document, error) {
	docs := cache.snapshot.Load().(map[string]*policy.Document)
	if doc, ok := docs[bucket]; ok {
		return doc, nil
	}

	gen := cache.generation()
	raw, err := cache.db.GetBucketPolicy(ctx, bucket)

	var doc *policy.Document
	switch {
	case err == nil:
		doc, err = policy.Parse(raw)
		if err != nil {
			// a stored document that no longer parses fails closed
			return nil, err
		}
	case s3.ErrNoSuchBucketPolicy.Has(err), s3.ErrNoSuchBucket.Has(err):
	default:
		return nil, err
	}

	cache.store(gen, bucket, doc)
	return doc, nil
}

func (cache *policyCache) generation() uint64 {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return cache.gen
}

// store caches the fetched document unless an invalidation raced the
// fetch; then the copy may be stale and the next lookup rereads.
func (cache *policyCache) store(gen uint64, bucket string, doc *policy.Document) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if cache.gen != gen {
		return
	}
	old := cache.snapshot.Load().(map[string]*policy.Document)
	next := make(map[string]*policy.Document, len(old)+1)
	for name, value := range old {
		next[name] = value
	}
	next[bucket] = doc
	cache.snapshot.Store(next)
}

// invalidate drops the bucket's entry after a policy write so the next
// lookup rereads the record.
func (cache *policyCache) invalidate(bucket string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.gen++
	old := cache.snapshot.Load().(map[string]*policy.Document)
	if _, ok := old[bucket]; !ok {
		return
	}
	next := make(map[string]*policy.Document, len(old))
	for name, value := range old {
		if name != bucket {
			next[name] = value
		}
	}
	cache.snapshot.Store(next)
}

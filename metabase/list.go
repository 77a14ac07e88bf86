// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package metabase

import (
	"context"
	"strings"

	"github.com/shellnoq/hafiz/storage"
)

// ListObjectsOptions select and window a ListObjects.
type ListObjectsOptions struct {
	Prefix    string
	Delimiter string
	Marker    string
	Limit     int
}

// ListObjectsResult is one page of latest versions in key order, with keys
// sharing a delimiter-bounded prefix rolled up into CommonPrefixes.
// Objects and common prefixes both count toward the limit.
type ListObjectsResult struct {
	Objects        []ObjectVersion
	CommonPrefixes []string
	Truncated      bool
	NextMarker     string
}

// ListObjects pages through the bucket's live objects. Keys whose latest
// version is a delete marker are not listed.
func (db *DB) ListObjects(ctx context.Context, bucket string, opts ListObjectsOptions) (result ListObjectsResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := db.GetBucket(ctx, bucket); err != nil {
		return ListObjectsResult{}, err
	}
	limit := clampLimit(opts.Limit)

	base := string(chainPrefix(bucket))
	iterPrefix := storage.Key(base + opts.Prefix)
	var first storage.Key
	if opts.Marker != "" {
		first = append(chainKey(bucket, opts.Marker), 0)
	}

	total := 0
	lastEntry := ""
	for {
		// Rolling a group up ends the pass; the next one resumes past the
		// whole group, so grouped keys cost one probe instead of a scan.
		var skipTo storage.Key
		err = db.kv.Iterate(ctx, storage.IterateOptions{Prefix: iterPrefix, First: first}, func(ctx context.Context, it storage.Iterator) error {
			var item storage.ListItem
			for it.Next(ctx, &item) {
				key := strings.TrimPrefix(string(item.Key), base)
				if opts.Delimiter != "" {
					remainder := strings.TrimPrefix(key, opts.Prefix)
					if idx := strings.Index(remainder, opts.Delimiter); idx >= 0 {
						group := opts.Prefix + remainder[:idx+len(opts.Delimiter)]
						skipTo = storage.AfterPrefix(storage.Key(base + group))
						// a group at or before the marker went out on an
						// earlier page
						if opts.Marker != "" && group <= opts.Marker {
							return nil
						}
						if total == limit {
							result.Truncated = true
							return nil
						}
						result.CommonPrefixes = append(result.CommonPrefixes, group)
						total++
						lastEntry = group
						return nil
					}
				}
				var chain chainRecord
				if err := decodeRecord(item.Value, &chain); err != nil {
					return err
				}
				if len(chain.Versions) == 0 || chain.Versions[0].IsDeleteMarker {
					continue
				}
				if total == limit {
					result.Truncated = true
					return nil
				}
				chain.materialize(bucket, key)
				result.Objects = append(result.Objects, chain.Versions[0])
				total++
				lastEntry = key
			}
			return nil
		})
		if err != nil {
			return ListObjectsResult{}, Error.Wrap(err)
		}
		if skipTo == nil || result.Truncated {
			break
		}
		first = skipTo
	}

	if result.Truncated {
		result.NextMarker = lastEntry
	}
	mon.Meter("object_list").Mark(1)
	return result, nil
}

// ListVersionsOptions select and window a ListObjectVersions.
type ListVersionsOptions struct {
	Prefix          string
	Delimiter       string
	KeyMarker       string
	VersionIDMarker string
	Limit           int
}

// ListVersionsResult is one page of versions in key order, newest first
// within a key. Delete markers are listed like versions.
type ListVersionsResult struct {
	Versions            []ObjectVersion
	CommonPrefixes      []string
	Truncated           bool
	NextKeyMarker       string
	NextVersionIDMarker string
}

// ListObjectVersions pages through every version and delete marker of the
// bucket. With VersionIDMarker set the page resumes inside KeyMarker's
// chain, strictly after the marked version.
func (db *DB) ListObjectVersions(ctx context.Context, bucket string, opts ListVersionsOptions) (result ListVersionsResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := db.GetBucket(ctx, bucket); err != nil {
		return ListVersionsResult{}, err
	}
	limit := clampLimit(opts.Limit)

	base := string(chainPrefix(bucket))
	iterPrefix := storage.Key(base + opts.Prefix)
	var first storage.Key
	if opts.KeyMarker != "" {
		if opts.VersionIDMarker != "" {
			first = chainKey(bucket, opts.KeyMarker)
		} else {
			first = append(chainKey(bucket, opts.KeyMarker), 0)
		}
	}

	total := 0
	lastKey, lastVersionID := "", ""
	for {
		var skipTo storage.Key
		err = db.kv.Iterate(ctx, storage.IterateOptions{Prefix: iterPrefix, First: first}, func(ctx context.Context, it storage.Iterator) error {
			var item storage.ListItem
			for it.Next(ctx, &item) {
				key := strings.TrimPrefix(string(item.Key), base)
				if opts.Delimiter != "" {
					remainder := strings.TrimPrefix(key, opts.Prefix)
					if idx := strings.Index(remainder, opts.Delimiter); idx >= 0 {
						group := opts.Prefix + remainder[:idx+len(opts.Delimiter)]
						skipTo = storage.AfterPrefix(storage.Key(base + group))
						if opts.KeyMarker != "" && group <= opts.KeyMarker {
							return nil
						}
						if total == limit {
							result.Truncated = true
							return nil
						}
						result.CommonPrefixes = append(result.CommonPrefixes, group)
						total++
						lastKey, lastVersionID = group, ""
						return nil
					}
				}
				var chain chainRecord
				if err := decodeRecord(item.Value, &chain); err != nil {
					return err
				}
				chain.materialize(bucket, key)
				start := 0
				if key == opts.KeyMarker && opts.VersionIDMarker != "" {
					start = resumeIndex(&chain, opts.VersionIDMarker)
				}
				for _, version := range chain.Versions[start:] {
					if total == limit {
						result.Truncated = true
						return nil
					}
					result.Versions = append(result.Versions, version)
					total++
					lastKey, lastVersionID = version.Key, version.VersionID
				}
			}
			return nil
		})
		if err != nil {
			return ListVersionsResult{}, Error.Wrap(err)
		}
		if skipTo == nil || result.Truncated {
			break
		}
		first = skipTo
	}

	if result.Truncated {
		result.NextKeyMarker = lastKey
		result.NextVersionIDMarker = lastVersionID
	}
	mon.Meter("version_list").Mark(1)
	return result, nil
}

// resumeIndex locates the first chain index after the marked version. When
// the marked version was removed between pages, ids still order by
// creation, so the page resumes at the first version created before it.
func resumeIndex(chain *chainRecord, versionIDMarker string) int {
	if i := chain.find(versionIDMarker); i >= 0 {
		return i + 1
	}
	for i := range chain.Versions {
		if chain.Versions[i].VersionID < versionIDMarker {
			return i
		}
	}
	return len(chain.Versions)
}

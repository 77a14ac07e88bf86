// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package metabase_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellnoq/hafiz/internal/testcontext"
	"github.com/shellnoq/hafiz/metabase"
	"github.com/shellnoq/hafiz/s3"
)

func seedObjects(t *testing.T, ctx *testcontext.Context, db *metabase.DB, bucket string, keys ...string) {
	for _, key := range keys {
		_, err := db.PutObject(ctx, metabase.PutObjectParams{
			Bucket: bucket, Key: key, Body: strings.NewReader("content of " + key),
		})
		require.NoError(t, err)
	}
}

func listedKeys(result metabase.ListObjectsResult) []string {
	keys := make([]string, 0, len(result.Objects))
	for _, object := range result.Objects {
		keys = append(keys, object.Key)
	}
	return keys
}

func TestListObjects(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "site", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "site", s3.VersioningEnabled))
	seedObjects(t, ctx, db, "site", "about", "blog/one", "blog/two", "css/site.css", "index")

	// a delete marked key disappears from the flat listing
	_, err = db.DeleteObject(ctx, "site", "index", metabase.DeleteObjectOptions{})
	require.NoError(t, err)

	flat, err := db.ListObjects(ctx, "site", metabase.ListObjectsOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"about", "blog/one", "blog/two", "css/site.css"}, listedKeys(flat))
	require.Empty(t, flat.CommonPrefixes)
	require.False(t, flat.Truncated)
	for _, object := range flat.Objects {
		require.True(t, object.IsLatest)
		require.Equal(t, "site", object.Bucket)
	}

	grouped, err := db.ListObjects(ctx, "site", metabase.ListObjectsOptions{Delimiter: "/"})
	require.NoError(t, err)
	require.Equal(t, []string{"about"}, listedKeys(grouped))
	require.Equal(t, []string{"blog/", "css/"}, grouped.CommonPrefixes)

	scoped, err := db.ListObjects(ctx, "site", metabase.ListObjectsOptions{Prefix: "blog/", Delimiter: "/"})
	require.NoError(t, err)
	require.Equal(t, []string{"blog/one", "blog/two"}, listedKeys(scoped))
	require.Empty(t, scoped.CommonPrefixes)

	partial, err := db.ListObjects(ctx, "site", metabase.ListObjectsOptions{Prefix: "b", Delimiter: "/"})
	require.NoError(t, err)
	require.Empty(t, partial.Objects)
	require.Equal(t, []string{"blog/"}, partial.CommonPrefixes)

	_, err = db.ListObjects(ctx, "absent", metabase.ListObjectsOptions{})
	require.True(t, s3.ErrNoSuchBucket.Has(err))
}

func TestListObjectsGroupedPages(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "site", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	seedObjects(t, ctx, db, "site", "about", "blog/one", "blog/two", "css/site.css", "zulu")

	first, err := db.ListObjects(ctx, "site", metabase.ListObjectsOptions{Delimiter: "/", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"about"}, listedKeys(first))
	require.Equal(t, []string{"blog/"}, first.CommonPrefixes)
	require.True(t, first.Truncated)
	require.Equal(t, "blog/", first.NextMarker)

	// resuming from a group marker must not repeat the group
	second, err := db.ListObjects(ctx, "site", metabase.ListObjectsOptions{
		Delimiter: "/", Marker: first.NextMarker,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"zulu"}, listedKeys(second))
	require.Equal(t, []string{"css/"}, second.CommonPrefixes)
	require.False(t, second.Truncated)
}

func TestListObjectsPagination(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "pages", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	var keys []string
	for i := 0; i < 7; i++ {
		keys = append(keys, fmt.Sprintf("key-%02d", i))
	}
	seedObjects(t, ctx, db, "pages", keys...)

	var collected []string
	marker := ""
	for {
		page, err := db.ListObjects(ctx, "pages", metabase.ListObjectsOptions{Marker: marker, Limit: 3})
		require.NoError(t, err)
		collected = append(collected, listedKeys(page)...)
		if !page.Truncated {
			break
		}
		require.NotEmpty(t, page.NextMarker)
		marker = page.NextMarker
	}
	require.Equal(t, keys, collected)
}

func TestListObjectVersions(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "drafts", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "drafts", s3.VersioningEnabled))

	seedObjects(t, ctx, db, "drafts", "alpha", "alpha", "beta", "gamma")
	_, err = db.DeleteObject(ctx, "drafts", "beta", metabase.DeleteObjectOptions{})
	require.NoError(t, err)

	all, err := db.ListObjectVersions(ctx, "drafts", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Len(t, all.Versions, 5)

	require.Equal(t, "alpha", all.Versions[0].Key)
	require.True(t, all.Versions[0].IsLatest)
	require.Equal(t, "alpha", all.Versions[1].Key)
	require.False(t, all.Versions[1].IsLatest)
	require.Equal(t, "beta", all.Versions[2].Key)
	require.True(t, all.Versions[2].IsDeleteMarker)
	require.Equal(t, "beta", all.Versions[3].Key)
	require.False(t, all.Versions[3].IsDeleteMarker)
	require.Equal(t, "gamma", all.Versions[4].Key)

	scoped, err := db.ListObjectVersions(ctx, "drafts", metabase.ListVersionsOptions{Prefix: "beta"})
	require.NoError(t, err)
	require.Len(t, scoped.Versions, 2)
}

func TestListObjectVersionsPagination(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "drafts", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "drafts", s3.VersioningEnabled))
	seedObjects(t, ctx, db, "drafts", "alpha", "alpha", "alpha", "beta", "beta")

	full, err := db.ListObjectVersions(ctx, "drafts", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Len(t, full.Versions, 5)

	// pages of two must cut inside the alpha chain and resume without
	// duplicating or dropping versions
	var collected []metabase.ObjectVersion
	opts := metabase.ListVersionsOptions{Limit: 2}
	for {
		page, err := db.ListObjectVersions(ctx, "drafts", opts)
		require.NoError(t, err)
		collected = append(collected, page.Versions...)
		if !page.Truncated {
			break
		}
		opts.KeyMarker = page.NextKeyMarker
		opts.VersionIDMarker = page.NextVersionIDMarker
	}
	require.Equal(t, full.Versions, collected)
}

func TestListObjectVersionsDelimiter(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "drafts", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "drafts", s3.VersioningEnabled))
	seedObjects(t, ctx, db, "drafts", "logs/2025/one", "logs/2025/two", "readme", "readme")

	grouped, err := db.ListObjectVersions(ctx, "drafts", metabase.ListVersionsOptions{Delimiter: "/"})
	require.NoError(t, err)
	require.Equal(t, []string{"logs/"}, grouped.CommonPrefixes)
	require.Len(t, grouped.Versions, 2)
	for _, version := range grouped.Versions {
		require.Equal(t, "readme", version.Key)
	}
}

func TestListObjectsEmptyBucket(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "hollow", s3.ObjectLockConfiguration{})
	require.NoError(t, err)

	flat, err := db.ListObjects(ctx, "hollow", metabase.ListObjectsOptions{})
	require.NoError(t, err)
	require.Empty(t, flat.Objects)
	require.False(t, flat.Truncated)

	versions, err := db.ListObjectVersions(ctx, "hollow", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Empty(t, versions.Versions)
}

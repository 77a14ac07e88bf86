// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package metabase_test

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shellnoq/hafiz/internal/testcontext"
	"github.com/shellnoq/hafiz/metabase"
	"github.com/shellnoq/hafiz/s3"
)

func TestPutGetObject(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.TestingSetNow(fixedClock(now))

	_, err := db.CreateBucket(ctx, "greetings", s3.ObjectLockConfiguration{})
	require.NoError(t, err)

	version, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "greetings",
		Key:    "hello",
		Body:   strings.NewReader("hello world"),
	})
	require.NoError(t, err)
	require.Equal(t, s3.NullVersionID, version.VersionID)
	require.True(t, version.IsLatest)
	require.False(t, version.IsDeleteMarker)
	require.Equal(t, int64(11), version.Size)
	require.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", version.ETag)
	require.Equal(t, now, version.CreatedAt)

	latest, err := db.GetLatest(ctx, "greetings", "hello")
	require.NoError(t, err)
	require.Equal(t, version, latest)

	reader, err := db.OpenObject(ctx, latest)
	require.NoError(t, err)
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	require.Equal(t, "hello world", string(content))

	// an unversioned bucket keeps a single replaceable version per key
	replaced, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "greetings",
		Key:    "hello",
		Body:   strings.NewReader("good morning"),
	})
	require.NoError(t, err)
	require.Equal(t, s3.NullVersionID, replaced.VersionID)
	require.NotEqual(t, version.ETag, replaced.ETag)

	listed, err := db.ListObjectVersions(ctx, "greetings", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Len(t, listed.Versions, 1)
	require.Equal(t, replaced.ETag, listed.Versions[0].ETag)

	_, err = db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "absent", Key: "hello", Body: strings.NewReader("x"),
	})
	require.True(t, s3.ErrNoSuchBucket.Has(err))
}

func TestPutObjectVersioned(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "drafts", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "drafts", s3.VersioningEnabled))

	first, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "drafts", Key: "novel", Body: strings.NewReader("draft one"),
	})
	require.NoError(t, err)
	second, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "drafts", Key: "novel", Body: strings.NewReader("draft two"),
	})
	require.NoError(t, err)
	require.NotEqual(t, first.VersionID, second.VersionID)
	require.NotEqual(t, s3.NullVersionID, first.VersionID)

	latest, err := db.GetLatest(ctx, "drafts", "novel")
	require.NoError(t, err)
	require.Equal(t, second.VersionID, latest.VersionID)

	old, err := db.GetVersion(ctx, "drafts", "novel", first.VersionID)
	require.NoError(t, err)
	require.Equal(t, first.ETag, old.ETag)
	require.False(t, old.IsLatest)

	listed, err := db.ListObjectVersions(ctx, "drafts", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Len(t, listed.Versions, 2)
	require.Equal(t, second.VersionID, listed.Versions[0].VersionID)
	require.True(t, listed.Versions[0].IsLatest)
	require.Equal(t, first.VersionID, listed.Versions[1].VersionID)
	require.False(t, listed.Versions[1].IsLatest)
}

func TestPutObjectSuspended(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "archive", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "archive", s3.VersioningEnabled))

	_, err = db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "archive", Key: "report", Body: strings.NewReader("v1"),
	})
	require.NoError(t, err)
	kept, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "archive", Key: "report", Body: strings.NewReader("v2"),
	})
	require.NoError(t, err)

	require.NoError(t, db.SetBucketVersioning(ctx, "archive", s3.VersioningSuspended))

	third, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "archive", Key: "report", Body: strings.NewReader("v3"),
	})
	require.NoError(t, err)
	require.Equal(t, s3.NullVersionID, third.VersionID)
	require.True(t, third.IsLatest)

	// the null slot is replaced in place; earlier ids survive
	fourth, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "archive", Key: "report", Body: strings.NewReader("v4"),
	})
	require.NoError(t, err)
	require.Equal(t, s3.NullVersionID, fourth.VersionID)

	listed, err := db.ListObjectVersions(ctx, "archive", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Len(t, listed.Versions, 3)
	require.Equal(t, s3.NullVersionID, listed.Versions[0].VersionID)
	require.Equal(t, fourth.ETag, listed.Versions[0].ETag)
	require.Equal(t, kept.VersionID, listed.Versions[1].VersionID)

	latest, err := db.GetLatest(ctx, "archive", "report")
	require.NoError(t, err)
	require.Equal(t, fourth.ETag, latest.ETag)
}

func TestDeleteObjectUnversioned(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "scratch", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	_, err = db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "scratch", Key: "note", Body: strings.NewReader("gone soon"),
	})
	require.NoError(t, err)

	result, err := db.DeleteObject(ctx, "scratch", "note", metabase.DeleteObjectOptions{})
	require.NoError(t, err)
	require.Nil(t, result.Marker)
	require.NotNil(t, result.Removed)
	require.Equal(t, s3.NullVersionID, result.Removed.VersionID)

	_, err = db.GetLatest(ctx, "scratch", "note")
	require.True(t, s3.ErrNoSuchKey.Has(err))

	// deleting an absent key succeeds and writes nothing
	result, err = db.DeleteObject(ctx, "scratch", "note", metabase.DeleteObjectOptions{})
	require.NoError(t, err)
	require.Nil(t, result.Marker)
	require.Nil(t, result.Removed)
}

func TestDeleteObjectVersioned(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "drafts", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "drafts", s3.VersioningEnabled))

	put, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "drafts", Key: "novel", Body: strings.NewReader("draft"),
	})
	require.NoError(t, err)

	result, err := db.DeleteObject(ctx, "drafts", "novel", metabase.DeleteObjectOptions{})
	require.NoError(t, err)
	require.Nil(t, result.Removed)
	require.NotNil(t, result.Marker)
	require.True(t, result.Marker.IsDeleteMarker)
	require.NotEqual(t, s3.NullVersionID, result.Marker.VersionID)

	latest, err := db.GetLatest(ctx, "drafts", "novel")
	require.True(t, s3.ErrNoSuchKey.Has(err))
	require.True(t, latest.IsDeleteMarker)

	listed, err := db.ListObjectVersions(ctx, "drafts", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Len(t, listed.Versions, 2)

	// removing the marker brings the object back
	removed, err := db.DeleteObject(ctx, "drafts", "novel", metabase.DeleteObjectOptions{
		VersionID: result.Marker.VersionID,
	})
	require.NoError(t, err)
	require.NotNil(t, removed.Removed)
	require.True(t, removed.Removed.IsDeleteMarker)

	latest, err = db.GetLatest(ctx, "drafts", "novel")
	require.NoError(t, err)
	require.Equal(t, put.VersionID, latest.VersionID)
	require.True(t, latest.IsLatest)
}

func TestDeleteObjectSuspended(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "archive", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "archive", s3.VersioningEnabled))
	put, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "archive", Key: "report", Body: strings.NewReader("v1"),
	})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "archive", s3.VersioningSuspended))

	result, err := db.DeleteObject(ctx, "archive", "report", metabase.DeleteObjectOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Marker)
	require.Equal(t, s3.NullVersionID, result.Marker.VersionID)
	require.Nil(t, result.Removed)

	listed, err := db.ListObjectVersions(ctx, "archive", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Len(t, listed.Versions, 2)

	// a second delete replaces the null marker instead of stacking
	result, err = db.DeleteObject(ctx, "archive", "report", metabase.DeleteObjectOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Marker)
	require.NotNil(t, result.Removed)
	require.True(t, result.Removed.IsDeleteMarker)

	listed, err = db.ListObjectVersions(ctx, "archive", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Len(t, listed.Versions, 2)
	require.Equal(t, put.VersionID, listed.Versions[1].VersionID)
}

func TestDeleteMarkerForAbsentKey(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "drafts", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "drafts", s3.VersioningEnabled))

	result, err := db.DeleteObject(ctx, "drafts", "ghost", metabase.DeleteObjectOptions{})
	require.NoError(t, err)
	require.NotNil(t, result.Marker)

	listed, err := db.ListObjectVersions(ctx, "drafts", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Len(t, listed.Versions, 1)
	require.True(t, listed.Versions[0].IsDeleteMarker)
}

func TestDeleteVersionIdempotent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "drafts", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "drafts", s3.VersioningEnabled))

	first, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "drafts", Key: "novel", Body: strings.NewReader("one"),
	})
	require.NoError(t, err)
	second, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "drafts", Key: "novel", Body: strings.NewReader("two"),
	})
	require.NoError(t, err)

	result, err := db.DeleteObject(ctx, "drafts", "novel", metabase.DeleteObjectOptions{VersionID: first.VersionID})
	require.NoError(t, err)
	require.NotNil(t, result.Removed)
	require.Equal(t, first.VersionID, result.Removed.VersionID)

	result, err = db.DeleteObject(ctx, "drafts", "novel", metabase.DeleteObjectOptions{VersionID: first.VersionID})
	require.NoError(t, err)
	require.Nil(t, result.Removed)

	// removing the last version erases the chain entirely
	_, err = db.DeleteObject(ctx, "drafts", "novel", metabase.DeleteObjectOptions{VersionID: second.VersionID})
	require.NoError(t, err)
	_, err = db.GetLatest(ctx, "drafts", "novel")
	require.True(t, s3.ErrNoSuchKey.Has(err))

	listed, err := db.ListObjectVersions(ctx, "drafts", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Empty(t, listed.Versions)
}

func TestGetVersionAndMarkers(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "drafts", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "drafts", s3.VersioningEnabled))

	_, err = db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "drafts", Key: "novel", Body: strings.NewReader("draft"),
	})
	require.NoError(t, err)
	result, err := db.DeleteObject(ctx, "drafts", "novel", metabase.DeleteObjectOptions{})
	require.NoError(t, err)

	// a marker resolves by id without error; its content does not open
	marker, err := db.GetVersion(ctx, "drafts", "novel", result.Marker.VersionID)
	require.NoError(t, err)
	require.True(t, marker.IsDeleteMarker)
	_, err = db.OpenObject(ctx, marker)
	require.True(t, s3.ErrMethodNotAllowed.Has(err))

	_, err = db.GetVersion(ctx, "drafts", "novel", "")
	require.True(t, s3.ErrInvalidArgument.Has(err))
	_, err = db.GetVersion(ctx, "drafts", "novel", "femtoseconds")
	require.True(t, s3.ErrNoSuchKey.Has(err))
	_, err = db.GetVersion(ctx, "drafts", "unwritten", marker.VersionID)
	require.True(t, s3.ErrNoSuchKey.Has(err))
	_, err = db.GetLatest(ctx, "absent-bucket", "novel")
	require.True(t, s3.ErrNoSuchBucket.Has(err))
}

func TestObjectKeyValidation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "keys", s3.ObjectLockConfiguration{})
	require.NoError(t, err)

	put := func(key string) error {
		_, err := db.PutObject(ctx, metabase.PutObjectParams{
			Bucket: "keys", Key: key, Body: strings.NewReader("x"),
		})
		return err
	}

	require.True(t, s3.ErrInvalidArgument.Has(put("")))
	require.True(t, s3.ErrInvalidArgument.Has(put("nul\x00byte")))
	require.True(t, s3.ErrInvalidArgument.Has(put(strings.Repeat("k", 1025))))
	require.NoError(t, put(strings.Repeat("k", 1024)))
	require.NoError(t, put("funky key/with spaces+unicode-é"))
}

func TestPutObjectUserMetadata(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "tagged", s3.ObjectLockConfiguration{})
	require.NoError(t, err)

	metadata := map[string]string{"owner": "ops", "purpose": "backup"}
	_, err = db.PutObject(ctx, metabase.PutObjectParams{
		Bucket:       "tagged",
		Key:          "dump",
		Body:         bytes.NewReader([]byte("payload")),
		UserMetadata: metadata,
	})
	require.NoError(t, err)

	latest, err := db.GetLatest(ctx, "tagged", "dump")
	require.NoError(t, err)
	require.Equal(t, metadata, latest.UserMetadata)
}

func TestConcurrentPuts(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "busy", s3.ObjectLockConfiguration{})
	require.NoError(t, err)
	require.NoError(t, db.SetBucketVersioning(ctx, "busy", s3.VersioningEnabled))

	const workers, puts = 8, 4
	for w := 0; w < workers; w++ {
		w := w
		ctx.Go(func() error {
			for p := 0; p < puts; p++ {
				_, err := db.PutObject(ctx, metabase.PutObjectParams{
					Bucket: "busy",
					Key:    "contested",
					Body:   strings.NewReader(fmt.Sprintf("worker %d put %d", w, p)),
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	ctx.Wait()

	listed, err := db.ListObjectVersions(ctx, "busy", metabase.ListVersionsOptions{})
	require.NoError(t, err)
	require.Len(t, listed.Versions, workers*puts)
	require.True(t, listed.Versions[0].IsLatest)
	for _, version := range listed.Versions[1:] {
		require.False(t, version.IsLatest)
	}

	latest, err := db.GetLatest(ctx, "busy", "contested")
	require.NoError(t, err)
	require.Equal(t, listed.Versions[0].VersionID, latest.VersionID)
}

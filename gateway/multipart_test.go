// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package gateway_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellnoq/hafiz/internal/testcontext"
	"github.com/shellnoq/hafiz/internal/testrand"
	"github.com/shellnoq/hafiz/metabase"
	"github.com/shellnoq/hafiz/s3"
)

func TestPipelineMultipartLifecycle(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newTestEnv(t, ctx)

	env.createBucket(t, ctx, "media")

	// the write grant covers begin, part upload and complete; listing the
	// bucket's uploads and an upload's parts take their own actions
	env.putPolicy(t, ctx, "media", `{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": "member"},
			"Action": [
				"s3:PutObject",
				"s3:ListBucketMultipartUploads",
				"s3:ListMultipartUploadParts"
			],
			"Resource": ["arn:aws:s3:::media", "arn:aws:s3:::media/*"]
		}]
	}`)

	upload, err := env.pipeline.BeginUpload(ctx,
		env.request(t, env.member, http.MethodPost, "https://hafiz.test/media/movie?uploads"),
		"media", "movie", map[string]string{"genre": "noir"})
	require.NoError(t, err)
	require.NotEmpty(t, upload.UploadID)

	first := testrand.Bytes(2048)
	second := testrand.Bytes(64)

	partOne, err := env.pipeline.UploadPart(ctx,
		env.request(t, env.member, http.MethodPut, "https://hafiz.test/media/movie?partNumber=1"),
		"media", "movie", upload.UploadID, 1, bytes.NewReader(first))
	require.NoError(t, err)
	_, err = env.pipeline.UploadPart(ctx,
		env.request(t, env.member, http.MethodPut, "https://hafiz.test/media/movie?partNumber=2"),
		"media", "movie", upload.UploadID, 2, bytes.NewReader(second))
	require.NoError(t, err)

	uploads, err := env.pipeline.ListUploads(ctx,
		env.request(t, env.member, http.MethodGet, "https://hafiz.test/media?uploads"),
		"media", metabase.ListUploadsOptions{})
	require.NoError(t, err)
	require.Len(t, uploads.Uploads, 1)

	parts, err := env.pipeline.ListParts(ctx,
		env.request(t, env.member, http.MethodGet, "https://hafiz.test/media/movie?uploadId="+upload.UploadID),
		"media", "movie", upload.UploadID, metabase.ListPartsOptions{})
	require.NoError(t, err)
	require.Len(t, parts.Parts, 2)
	require.Equal(t, partOne.ETag, parts.Parts[0].ETag)

	// aborting was not granted
	err = env.pipeline.AbortUpload(ctx,
		env.request(t, env.member, http.MethodDelete, "https://hafiz.test/media/movie?uploadId="+upload.UploadID),
		"media", "movie", upload.UploadID)
	require.True(t, s3.ErrAccessDenied.Has(err), "abort: %v", err)

	version, err := env.pipeline.CompleteUpload(ctx,
		env.request(t, env.member, http.MethodPost, "https://hafiz.test/media/movie?uploadId="+upload.UploadID),
		"media", "movie", upload.UploadID, []metabase.CompletedPart{
			{PartNumber: 1, ETag: parts.Parts[0].ETag},
			{PartNumber: 2, ETag: parts.Parts[1].ETag},
		})
	require.NoError(t, err)
	require.Equal(t, int64(len(first)+len(second)), version.Size)
	require.Equal(t, "noir", version.UserMetadata["genre"])

	// the owner reads the assembled object back
	_, reader, err := env.pipeline.GetObject(ctx,
		env.request(t, env.root, http.MethodGet, "https://hafiz.test/media/movie"),
		"media", "movie", "")
	require.NoError(t, err)
	require.Equal(t, string(first)+string(second), readAll(t, reader))

	// the upload is terminal now
	_, err = env.pipeline.ListParts(ctx,
		env.request(t, env.member, http.MethodGet, "https://hafiz.test/media/movie?uploadId="+upload.UploadID),
		"media", "movie", upload.UploadID, metabase.ListPartsOptions{})
	require.True(t, s3.ErrNoSuchUpload.Has(err), "parts after complete: %v", err)
}

func TestPipelineMultipartDenied(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	env := newTestEnv(t, ctx)

	env.createBucket(t, ctx, "media")

	_, err := env.pipeline.BeginUpload(ctx,
		anonymousRequest(http.MethodPost, "https://hafiz.test/media/movie?uploads"),
		"media", "movie", nil)
	require.True(t, s3.ErrAccessDenied.Has(err), "anonymous begin: %v", err)

	_, err = env.pipeline.BeginUpload(ctx,
		env.request(t, env.member, http.MethodPost, "https://hafiz.test/media/movie?uploads"),
		"media", "movie", nil)
	require.True(t, s3.ErrAccessDenied.Has(err), "member begin: %v", err)

	// the owner aborts uploads no matter who started them
	upload, err := env.pipeline.BeginUpload(ctx,
		env.request(t, env.root, http.MethodPost, "https://hafiz.test/media/movie?uploads"),
		"media", "movie", nil)
	require.NoError(t, err)
	err = env.pipeline.AbortUpload(ctx,
		env.request(t, env.root, http.MethodDelete, "https://hafiz.test/media/movie?uploadId="+upload.UploadID),
		"media", "movie", upload.UploadID)
	require.NoError(t, err)
}

// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package gateway

import (
	"context"
	"io"
	"net/http"

	"github.com/shellnoq/hafiz/metabase"
	"github.com/shellnoq/hafiz/s3"
)

// BeginUpload starts a multipart upload. Starting, writing parts and
// completing all ride on the object write permission.
func (pipeline *Pipeline) BeginUpload(ctx context.Context, r *http.Request, bucket, key string, metadata map[string]string) (_ metabase.MultipartUpload, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionPutObject, bucket, key); err != nil {
		return metabase.MultipartUpload{}, err
	}
	return pipeline.db.BeginUpload(ctx, bucket, key, metadata)
}

// UploadPart streams one part of the upload.
func (pipeline *Pipeline) UploadPart(ctx context.Context, r *http.Request, bucket, key, uploadID string, partNumber int, body io.Reader) (_ metabase.Part, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionPutObject, bucket, key); err != nil {
		return metabase.Part{}, err
	}
	return pipeline.db.UploadPart(ctx, bucket, key, uploadID, partNumber, body)
}

// CompleteUpload assembles the upload into a new object version.
func (pipeline *Pipeline) CompleteUpload(ctx context.Context, r *http.Request, bucket, key, uploadID string, parts []metabase.CompletedPart) (_ metabase.ObjectVersion, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionPutObject, bucket, key); err != nil {
		return metabase.ObjectVersion{}, err
	}
	return pipeline.db.CompleteUpload(ctx, bucket, key, uploadID, parts)
}

// AbortUpload discards the upload and its parts.
func (pipeline *Pipeline) AbortUpload(ctx context.Context, r *http.Request, bucket, key, uploadID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionAbortMultipartUpload, bucket, key); err != nil {
		return err
	}
	return pipeline.db.AbortUpload(ctx, bucket, key, uploadID)
}

// ListUploads pages through the bucket's in-progress uploads.
func (pipeline *Pipeline) ListUploads(ctx context.Context, r *http.Request, bucket string, opts metabase.ListUploadsOptions) (_ metabase.ListUploadsResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionListBucketMultipartUploads, bucket, ""); err != nil {
		return metabase.ListUploadsResult{}, err
	}
	return pipeline.db.ListUploads(ctx, bucket, opts)
}

// ListParts pages through an upload's parts.
func (pipeline *Pipeline) ListParts(ctx context.Context, r *http.Request, bucket, key, uploadID string, opts metabase.ListPartsOptions) (_ metabase.ListPartsResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionListMultipartUploadParts, bucket, key); err != nil {
		return metabase.ListPartsResult{}, err
	}
	return pipeline.db.ListParts(ctx, bucket, key, uploadID, opts)
}

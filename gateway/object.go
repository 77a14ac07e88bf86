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

// PutObject writes a new object version. Supplying retention or a legal
// hold with the put needs the matching permission on top of the write.
func (pipeline *Pipeline) PutObject(ctx context.Context, r *http.Request, params metabase.PutObjectParams) (_ metabase.ObjectVersion, err error) {
	defer mon.Task()(&ctx)(&err)

	principal, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionPutObject, params.Bucket, params.Key)
	if err != nil {
		return metabase.ObjectVersion{}, err
	}
	if params.Retention.Enabled() {
		if err := pipeline.authorize(ctx, r, principal, s3.ActionPutObjectRetention, params.Bucket, params.Key); err != nil {
			return metabase.ObjectVersion{}, err
		}
	}
	if params.LegalHold != "" {
		if err := pipeline.authorize(ctx, r, principal, s3.ActionPutObjectLegalHold, params.Bucket, params.Key); err != nil {
			return metabase.ObjectVersion{}, err
		}
	}
	return pipeline.db.PutObject(ctx, params)
}

// GetObject authorizes the read and opens the version's content. An empty
// versionID reads the latest; the version comes back even when err is a
// delete-marker NoSuchKey, so callers can surface the marker's id.
func (pipeline *Pipeline) GetObject(ctx context.Context, r *http.Request, bucket, key, versionID string) (_ metabase.ObjectVersion, _ io.ReadCloser, err error) {
	defer mon.Task()(&ctx)(&err)

	action := s3.ActionGetObject
	if versionID != "" {
		action = s3.ActionGetObjectVersion
	}
	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, action, bucket, key); err != nil {
		return metabase.ObjectVersion{}, nil, err
	}

	var version metabase.ObjectVersion
	if versionID == "" {
		version, err = pipeline.db.GetLatest(ctx, bucket, key)
	} else {
		version, err = pipeline.db.GetVersion(ctx, bucket, key, versionID)
	}
	if err != nil {
		return version, nil, err
	}
	reader, err := pipeline.db.OpenObject(ctx, version)
	if err != nil {
		return version, nil, err
	}
	return version, reader, nil
}

// DeleteObject deletes the key logically or one version physically. The
// governance bypass header counts only for callers holding the bypass
// permission.
func (pipeline *Pipeline) DeleteObject(ctx context.Context, r *http.Request, bucket, key, versionID string) (_ metabase.DeleteObjectResult, err error) {
	defer mon.Task()(&ctx)(&err)

	action := s3.ActionDeleteObject
	if versionID != "" {
		action = s3.ActionDeleteObjectVersion
	}
	principal, err := pipeline.AuthenticateAndAuthorize(ctx, r, action, bucket, key)
	if err != nil {
		return metabase.DeleteObjectResult{}, err
	}
	bypass, err := pipeline.bypassGovernance(ctx, r, principal, bucket, key)
	if err != nil {
		return metabase.DeleteObjectResult{}, err
	}
	return pipeline.db.DeleteObject(ctx, bucket, key, metabase.DeleteObjectOptions{
		VersionID:        versionID,
		BypassGovernance: bypass,
	})
}

// ListObjects lists the bucket's visible latest versions.
func (pipeline *Pipeline) ListObjects(ctx context.Context, r *http.Request, bucket string, opts metabase.ListObjectsOptions) (_ metabase.ListObjectsResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionListBucket, bucket, ""); err != nil {
		return metabase.ListObjectsResult{}, err
	}
	return pipeline.db.ListObjects(ctx, bucket, opts)
}

// ListObjectVersions lists every version and delete marker.
func (pipeline *Pipeline) ListObjectVersions(ctx context.Context, r *http.Request, bucket string, opts metabase.ListVersionsOptions) (_ metabase.ListVersionsResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionListBucketVersions, bucket, ""); err != nil {
		return metabase.ListVersionsResult{}, err
	}
	return pipeline.db.ListObjectVersions(ctx, bucket, opts)
}

// GetObjectRetention reads a version's retention.
func (pipeline *Pipeline) GetObjectRetention(ctx context.Context, r *http.Request, bucket, key, versionID string) (_ s3.Retention, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionGetObjectRetention, bucket, key); err != nil {
		return s3.Retention{}, err
	}
	return pipeline.db.GetObjectRetention(ctx, bucket, key, versionID)
}

// PutObjectRetention sets or extends a version's retention. Weakening
// governance retention takes the bypass header and permission; compliance
// retention never weakens for anyone.
func (pipeline *Pipeline) PutObjectRetention(ctx context.Context, r *http.Request, bucket, key, versionID string, retention s3.Retention) (err error) {
	defer mon.Task()(&ctx)(&err)

	principal, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionPutObjectRetention, bucket, key)
	if err != nil {
		return err
	}
	bypass, err := pipeline.bypassGovernance(ctx, r, principal, bucket, key)
	if err != nil {
		return err
	}
	return pipeline.db.PutObjectRetention(ctx, bucket, key, versionID, retention, bypass)
}

// GetObjectLegalHold reads a version's legal hold state.
func (pipeline *Pipeline) GetObjectLegalHold(ctx context.Context, r *http.Request, bucket, key, versionID string) (_ s3.LegalHoldStatus, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionGetObjectLegalHold, bucket, key); err != nil {
		return "", err
	}
	return pipeline.db.GetObjectLegalHold(ctx, bucket, key, versionID)
}

// PutObjectLegalHold switches a version's legal hold on or off.
func (pipeline *Pipeline) PutObjectLegalHold(ctx context.Context, r *http.Request, bucket, key, versionID string, status s3.LegalHoldStatus) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionPutObjectLegalHold, bucket, key); err != nil {
		return err
	}
	return pipeline.db.PutObjectLegalHold(ctx, bucket, key, versionID, status)
}

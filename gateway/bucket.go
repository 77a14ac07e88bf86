// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package gateway

import (
	"context"
	"net/http"

	"github.com/shellnoq/hafiz/metabase"
	"github.com/shellnoq/hafiz/pkg/policy"
	"github.com/shellnoq/hafiz/s3"
)

// CreateBucket creates a bucket. A bucket that does not exist yet has no
// policy, so the implicit ruling applies and only the owner passes.
func (pipeline *Pipeline) CreateBucket(ctx context.Context, r *http.Request, bucket string, lock s3.ObjectLockConfiguration) (_ metabase.Bucket, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionCreateBucket, bucket, ""); err != nil {
		return metabase.Bucket{}, err
	}
	created, err := pipeline.db.CreateBucket(ctx, bucket, lock)
	if err != nil {
		return metabase.Bucket{}, err
	}
	// a recreated bucket starts with no policy
	pipeline.policies.invalidate(bucket)
	return created, nil
}

// DeleteBucket removes an empty bucket. The policy dies with the bucket
// record, so its cache entry goes too.
func (pipeline *Pipeline) DeleteBucket(ctx context.Context, r *http.Request, bucket string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionDeleteBucket, bucket, ""); err != nil {
		return err
	}
	if err := pipeline.db.DeleteBucket(ctx, bucket); err != nil {
		return err
	}
	pipeline.policies.invalidate(bucket)
	return nil
}

// GetBucketVersioning reports the bucket's versioning state.
func (pipeline *Pipeline) GetBucketVersioning(ctx context.Context, r *http.Request, bucket string) (_ s3.VersioningState, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionGetBucketVersioning, bucket, ""); err != nil {
		return "", err
	}
	return pipeline.db.GetBucketVersioning(ctx, bucket)
}

// PutBucketVersioning switches versioning between Enabled and Suspended.
func (pipeline *Pipeline) PutBucketVersioning(ctx context.Context, r *http.Request, bucket string, state s3.VersioningState) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionPutBucketVersioning, bucket, ""); err != nil {
		return err
	}
	return pipeline.db.SetBucketVersioning(ctx, bucket, state)
}

// GetBucketPolicy returns the stored policy document. Policy management
// is owner-limited: the owner needs no grant, everyone else an explicit
// one.
func (pipeline *Pipeline) GetBucketPolicy(ctx context.Context, r *http.Request, bucket string) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.authenticateAndAuthorize(ctx, r, s3.ActionGetBucketPolicy, bucket, "", true); err != nil {
		return nil, err
	}
	return pipeline.db.GetBucketPolicy(ctx, bucket)
}

// PutBucketPolicy validates and stores the policy document, replacing any
// previous one wholesale.
func (pipeline *Pipeline) PutBucketPolicy(ctx context.Context, r *http.Request, bucket string, policyJSON []byte) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.authenticateAndAuthorize(ctx, r, s3.ActionPutBucketPolicy, bucket, "", true); err != nil {
		return err
	}
	if _, err := policy.Parse(policyJSON); err != nil {
		return err
	}
	if err := pipeline.db.PutBucketPolicy(ctx, bucket, policyJSON); err != nil {
		return err
	}
	pipeline.policies.invalidate(bucket)
	return nil
}

// DeleteBucketPolicy removes the policy document. The owner can always
// delete a policy, whatever the document says.
func (pipeline *Pipeline) DeleteBucketPolicy(ctx context.Context, r *http.Request, bucket string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.authenticateAndAuthorize(ctx, r, s3.ActionDeleteBucketPolicy, bucket, "", true); err != nil {
		return err
	}
	if err := pipeline.db.DeleteBucketPolicy(ctx, bucket); err != nil {
		return err
	}
	pipeline.policies.invalidate(bucket)
	return nil
}

// GetObjectLockConfiguration reports the bucket's object lock
// configuration.
func (pipeline *Pipeline) GetObjectLockConfiguration(ctx context.Context, r *http.Request, bucket string) (_ s3.ObjectLockConfiguration, err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.AuthenticateAndAuthorize(ctx, r, s3.ActionGetBucketObjectLockConfiguration, bucket, ""); err != nil {
		return s3.ObjectLockConfiguration{}, err
	}
	return pipeline.db.GetObjectLockConfiguration(ctx, bucket)
}

// PutObjectLockConfiguration adjusts the default retention of a
// lock-enabled bucket. Owner-limited like policy management.
func (pipeline *Pipeline) PutObjectLockConfiguration(ctx context.Context, r *http.Request, bucket string, config s3.ObjectLockConfiguration) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := pipeline.authenticateAndAuthorize(ctx, r, s3.ActionPutBucketObjectLockConfiguration, bucket, "", true); err != nil {
		return err
	}
	return pipeline.db.PutObjectLockConfiguration(ctx, bucket, config)
}

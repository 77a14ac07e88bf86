// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package metabase_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shellnoq/hafiz/internal/testcontext"
	"github.com/shellnoq/hafiz/metabase"
	"github.com/shellnoq/hafiz/s3"
)

func TestObjectLockConfiguration(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	_, err := db.CreateBucket(ctx, "plain", s3.ObjectLockConfiguration{})
	require.NoError(t, err)

	config, err := db.GetObjectLockConfiguration(ctx, "plain")
	require.NoError(t, err)
	require.False(t, config.Enabled)

	// lock is decided at creation, it cannot be switched on later
	err = db.PutObjectLockConfiguration(ctx, "plain", s3.ObjectLockConfiguration{Enabled: true})
	require.True(t, s3.ErrInvalidBucketState.Has(err))

	_, err = db.CreateBucket(ctx, "locked", s3.ObjectLockConfiguration{Enabled: true})
	require.NoError(t, err)

	err = db.PutObjectLockConfiguration(ctx, "locked", s3.ObjectLockConfiguration{
		Enabled:          true,
		DefaultRetention: &s3.DefaultRetention{Mode: s3.RetentionGovernance, Days: 30},
	})
	require.NoError(t, err)

	config, err = db.GetObjectLockConfiguration(ctx, "locked")
	require.NoError(t, err)
	require.True(t, config.Enabled)
	require.NotNil(t, config.DefaultRetention)
	require.Equal(t, 30, config.DefaultRetention.Days)

	err = db.PutObjectLockConfiguration(ctx, "locked", s3.ObjectLockConfiguration{})
	require.True(t, s3.ErrInvalidArgument.Has(err))

	err = db.PutObjectLockConfiguration(ctx, "locked", s3.ObjectLockConfiguration{
		Enabled:          true,
		DefaultRetention: &s3.DefaultRetention{Mode: s3.RetentionGovernance, Days: 1, Years: 1},
	})
	require.True(t, s3.ErrInvalidArgument.Has(err))
}

func TestDefaultRetentionStamped(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.TestingSetNow(fixedClock(now))

	_, err := db.CreateBucket(ctx, "vault", s3.ObjectLockConfiguration{
		Enabled:          true,
		DefaultRetention: &s3.DefaultRetention{Mode: s3.RetentionCompliance, Days: 30},
	})
	require.NoError(t, err)

	version, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "vault", Key: "ledger", Body: strings.NewReader("rows"),
	})
	require.NoError(t, err)

	retention, err := db.GetObjectRetention(ctx, "vault", "ledger", version.VersionID)
	require.NoError(t, err)
	require.Equal(t, s3.RetentionCompliance, retention.Mode)
	require.Equal(t, now.AddDate(0, 0, 30), retention.RetainUntil)

	hold, err := db.GetObjectLegalHold(ctx, "vault", "ledger", version.VersionID)
	require.NoError(t, err)
	require.Equal(t, s3.LegalHoldOff, hold)
}

func TestComplianceRetention(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.TestingSetNow(fixedClock(now))

	_, err := db.CreateBucket(ctx, "vault", s3.ObjectLockConfiguration{Enabled: true})
	require.NoError(t, err)

	until := now.Add(time.Hour)
	version, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket:    "vault",
		Key:       "ledger",
		Body:      strings.NewReader("rows"),
		Retention: s3.Retention{Mode: s3.RetentionCompliance, RetainUntil: until},
	})
	require.NoError(t, err)

	// no permission removes an object under compliance retention
	_, err = db.DeleteObject(ctx, "vault", "ledger", metabase.DeleteObjectOptions{VersionID: version.VersionID})
	require.True(t, s3.ErrInvalidObjectState.Has(err))
	_, err = db.DeleteObject(ctx, "vault", "ledger", metabase.DeleteObjectOptions{
		VersionID: version.VersionID, BypassGovernance: true,
	})
	require.True(t, s3.ErrInvalidObjectState.Has(err))

	err = db.PutObjectRetention(ctx, "vault", "ledger", version.VersionID,
		s3.Retention{Mode: s3.RetentionCompliance, RetainUntil: now.Add(30 * time.Minute)}, true)
	require.True(t, s3.ErrInvalidObjectState.Has(err))

	err = db.PutObjectRetention(ctx, "vault", "ledger", version.VersionID,
		s3.Retention{Mode: s3.RetentionGovernance, RetainUntil: until}, true)
	require.True(t, s3.ErrInvalidObjectState.Has(err))

	extended := until.Add(time.Hour)
	err = db.PutObjectRetention(ctx, "vault", "ledger", version.VersionID,
		s3.Retention{Mode: s3.RetentionCompliance, RetainUntil: extended}, false)
	require.NoError(t, err)

	retention, err := db.GetObjectRetention(ctx, "vault", "ledger", version.VersionID)
	require.NoError(t, err)
	require.Equal(t, extended, retention.RetainUntil)

	// expiry releases the version without any bypass
	db.TestingSetNow(fixedClock(extended.Add(time.Second)))
	result, err := db.DeleteObject(ctx, "vault", "ledger", metabase.DeleteObjectOptions{VersionID: version.VersionID})
	require.NoError(t, err)
	require.NotNil(t, result.Removed)
}

func TestGovernanceRetention(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.TestingSetNow(fixedClock(now))

	_, err := db.CreateBucket(ctx, "vault", s3.ObjectLockConfiguration{Enabled: true})
	require.NoError(t, err)

	until := now.Add(time.Hour)
	version, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket:    "vault",
		Key:       "ledger",
		Body:      strings.NewReader("rows"),
		Retention: s3.Retention{Mode: s3.RetentionGovernance, RetainUntil: until},
	})
	require.NoError(t, err)

	_, err = db.DeleteObject(ctx, "vault", "ledger", metabase.DeleteObjectOptions{VersionID: version.VersionID})
	require.True(t, s3.ErrAccessDenied.Has(err))

	// weakening needs the bypass, strengthening to compliance does not
	err = db.PutObjectRetention(ctx, "vault", "ledger", version.VersionID,
		s3.Retention{Mode: s3.RetentionGovernance, RetainUntil: now.Add(time.Minute)}, false)
	require.True(t, s3.ErrAccessDenied.Has(err))
	err = db.PutObjectRetention(ctx, "vault", "ledger", version.VersionID, s3.Retention{}, false)
	require.True(t, s3.ErrAccessDenied.Has(err))
	err = db.PutObjectRetention(ctx, "vault", "ledger", version.VersionID,
		s3.Retention{Mode: s3.RetentionCompliance, RetainUntil: until}, false)
	require.NoError(t, err)

	retention, err := db.GetObjectRetention(ctx, "vault", "ledger", version.VersionID)
	require.NoError(t, err)
	require.Equal(t, s3.RetentionCompliance, retention.Mode)

	second, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket:    "vault",
		Key:       "ledger",
		Body:      strings.NewReader("rows v2"),
		Retention: s3.Retention{Mode: s3.RetentionGovernance, RetainUntil: until},
	})
	require.NoError(t, err)

	err = db.PutObjectRetention(ctx, "vault", "ledger", second.VersionID, s3.Retention{}, true)
	require.NoError(t, err)
	retention, err = db.GetObjectRetention(ctx, "vault", "ledger", second.VersionID)
	require.NoError(t, err)
	require.False(t, retention.Enabled())

	result, err := db.DeleteObject(ctx, "vault", "ledger", metabase.DeleteObjectOptions{VersionID: second.VersionID})
	require.NoError(t, err)
	require.NotNil(t, result.Removed)
}

func TestGovernanceBypassDelete(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.TestingSetNow(fixedClock(now))

	_, err := db.CreateBucket(ctx, "vault", s3.ObjectLockConfiguration{Enabled: true})
	require.NoError(t, err)

	version, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket:    "vault",
		Key:       "ledger",
		Body:      strings.NewReader("rows"),
		Retention: s3.Retention{Mode: s3.RetentionGovernance, RetainUntil: now.Add(time.Hour)},
	})
	require.NoError(t, err)

	result, err := db.DeleteObject(ctx, "vault", "ledger", metabase.DeleteObjectOptions{
		VersionID: version.VersionID, BypassGovernance: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Removed)
}

func TestLegalHold(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.TestingSetNow(fixedClock(now))

	_, err := db.CreateBucket(ctx, "vault", s3.ObjectLockConfiguration{Enabled: true})
	require.NoError(t, err)

	version, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "vault", Key: "evidence", Body: strings.NewReader("exhibit a"),
	})
	require.NoError(t, err)

	require.NoError(t, db.PutObjectLegalHold(ctx, "vault", "evidence", version.VersionID, s3.LegalHoldOn))
	hold, err := db.GetObjectLegalHold(ctx, "vault", "evidence", version.VersionID)
	require.NoError(t, err)
	require.Equal(t, s3.LegalHoldOn, hold)

	// a hold blocks removal regardless of retention or bypass
	_, err = db.DeleteObject(ctx, "vault", "evidence", metabase.DeleteObjectOptions{
		VersionID: version.VersionID, BypassGovernance: true,
	})
	require.True(t, s3.ErrInvalidObjectState.Has(err))

	require.NoError(t, db.PutObjectLegalHold(ctx, "vault", "evidence", version.VersionID, s3.LegalHoldOff))
	_, err = db.DeleteObject(ctx, "vault", "evidence", metabase.DeleteObjectOptions{VersionID: version.VersionID})
	require.NoError(t, err)

	err = db.PutObjectLegalHold(ctx, "vault", "evidence", version.VersionID, s3.LegalHoldStatus("MAYBE"))
	require.True(t, s3.ErrInvalidArgument.Has(err))
}

func TestLockRequiresLockedBucket(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.TestingSetNow(fixedClock(now))

	_, err := db.CreateBucket(ctx, "plain", s3.ObjectLockConfiguration{})
	require.NoError(t, err)

	_, err = db.PutObject(ctx, metabase.PutObjectParams{
		Bucket:    "plain",
		Key:       "doc",
		Body:      strings.NewReader("x"),
		Retention: s3.Retention{Mode: s3.RetentionGovernance, RetainUntil: now.Add(time.Hour)},
	})
	require.True(t, s3.ErrInvalidArgument.Has(err))
	_, err = db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "plain", Key: "doc", Body: strings.NewReader("x"), LegalHold: s3.LegalHoldOn,
	})
	require.True(t, s3.ErrInvalidArgument.Has(err))

	_, err = db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "plain", Key: "doc", Body: strings.NewReader("x"),
	})
	require.NoError(t, err)

	err = db.PutObjectRetention(ctx, "plain", "doc", "",
		s3.Retention{Mode: s3.RetentionGovernance, RetainUntil: now.Add(time.Hour)}, false)
	require.True(t, s3.ErrInvalidArgument.Has(err))
	err = db.PutObjectLegalHold(ctx, "plain", "doc", "", s3.LegalHoldOn)
	require.True(t, s3.ErrInvalidArgument.Has(err))
	_, err = db.GetObjectRetention(ctx, "plain", "doc", "")
	require.True(t, s3.ErrInvalidArgument.Has(err))
}

func TestRetentionValidation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.TestingSetNow(fixedClock(now))

	_, err := db.CreateBucket(ctx, "vault", s3.ObjectLockConfiguration{Enabled: true})
	require.NoError(t, err)
	version, err := db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "vault", Key: "doc", Body: strings.NewReader("x"),
	})
	require.NoError(t, err)

	err = db.PutObjectRetention(ctx, "vault", "doc", version.VersionID,
		s3.Retention{Mode: s3.RetentionGovernance, RetainUntil: now.Add(-time.Hour)}, false)
	require.True(t, s3.ErrInvalidArgument.Has(err))
	err = db.PutObjectRetention(ctx, "vault", "doc", version.VersionID,
		s3.Retention{Mode: s3.RetentionMode("HOPEFUL"), RetainUntil: now.Add(time.Hour)}, false)
	require.True(t, s3.ErrInvalidArgument.Has(err))
	err = db.PutObjectRetention(ctx, "vault", "doc", version.VersionID,
		s3.Retention{Mode: s3.RetentionGovernance}, false)
	require.True(t, s3.ErrInvalidArgument.Has(err))
}

func TestRetentionOnDeleteMarker(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	db := newTestDB(t, ctx)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.TestingSetNow(fixedClock(now))

	_, err := db.CreateBucket(ctx, "vault", s3.ObjectLockConfiguration{Enabled: true})
	require.NoError(t, err)
	_, err = db.PutObject(ctx, metabase.PutObjectParams{
		Bucket: "vault", Key: "doc", Body: strings.NewReader("x"),
	})
	require.NoError(t, err)
	result, err := db.DeleteObject(ctx, "vault", "doc", metabase.DeleteObjectOptions{})
	require.NoError(t, err)

	marker := result.Marker.VersionID
	err = db.PutObjectRetention(ctx, "vault", "doc", marker,
		s3.Retention{Mode: s3.RetentionGovernance, RetainUntil: now.Add(time.Hour)}, false)
	require.True(t, s3.ErrMethodNotAllowed.Has(err))
	_, err = db.GetObjectRetention(ctx, "vault", "doc", marker)
	require.True(t, s3.ErrMethodNotAllowed.Has(err))
	err = db.PutObjectLegalHold(ctx, "vault", "doc", marker, s3.LegalHoldOn)
	require.True(t, s3.ErrMethodNotAllowed.Has(err))
	_, err = db.GetObjectLegalHold(ctx, "vault", "doc", marker)
	require.True(t, s3.ErrMethodNotAllowed.Has(err))
}

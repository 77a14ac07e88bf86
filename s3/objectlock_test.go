// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package s3_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shellnoq/hafiz/s3"
)

func TestRetentionBlocks(t *testing.T) {
	now := time.Now()

	var none s3.Retention
	require.False(t, none.Blocks(now, false))

	governance := s3.Retention{Mode: s3.RetentionGovernance, RetainUntil: now.Add(time.Hour)}
	require.True(t, governance.Blocks(now, false))
	require.False(t, governance.Blocks(now, true))
	require.False(t, governance.Blocks(now.Add(2*time.Hour), false))

	compliance := s3.Retention{Mode: s3.RetentionCompliance, RetainUntil: now.Add(time.Hour)}
	require.True(t, compliance.Blocks(now, false))
	require.True(t, compliance.Blocks(now, true))
	require.False(t, compliance.Blocks(now.Add(2*time.Hour), true))
}

func TestRetentionValidate(t *testing.T) {
	now := time.Now()
	require.NoError(t, s3.Retention{}.Validate())
	require.NoError(t, s3.Retention{Mode: s3.RetentionCompliance, RetainUntil: now}.Validate())

	require.Error(t, s3.Retention{Mode: "LENIENT", RetainUntil: now}.Validate())
	require.Error(t, s3.Retention{Mode: s3.RetentionGovernance}.Validate())
	require.Error(t, s3.Retention{RetainUntil: now}.Validate())
}

func TestDefaultRetentionValidate(t *testing.T) {
	require.NoError(t, s3.DefaultRetention{Mode: s3.RetentionGovernance, Days: 30}.Validate())
	require.NoError(t, s3.DefaultRetention{Mode: s3.RetentionCompliance, Years: 7}.Validate())

	require.Error(t, s3.DefaultRetention{Mode: s3.RetentionGovernance}.Validate())
	require.Error(t, s3.DefaultRetention{Mode: s3.RetentionGovernance, Days: 1, Years: 1}.Validate())
	require.Error(t, s3.DefaultRetention{Mode: s3.RetentionGovernance, Days: s3.MaxRetentionDays + 1}.Validate())
	require.Error(t, s3.DefaultRetention{Mode: s3.RetentionGovernance, Years: s3.MaxRetentionYears + 1}.Validate())
	require.Error(t, s3.DefaultRetention{Mode: "", Days: 30}.Validate())
}

func TestObjectLockConfiguration(t *testing.T) {
	require.NoError(t, s3.ObjectLockConfiguration{}.Validate())
	require.NoError(t, s3.ObjectLockConfiguration{Enabled: true}.Validate())

	withDefault := s3.ObjectLockConfiguration{
		Enabled:          true,
		DefaultRetention: &s3.DefaultRetention{Mode: s3.RetentionCompliance, Days: 30},
	}
	require.NoError(t, withDefault.Validate())

	require.Error(t, s3.ObjectLockConfiguration{
		DefaultRetention: &s3.DefaultRetention{Mode: s3.RetentionCompliance, Days: 30},
	}.Validate())

	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	retention := withDefault.DefaultVersionRetention(createdAt)
	require.Equal(t, s3.RetentionCompliance, retention.Mode)
	require.Equal(t, createdAt.AddDate(0, 0, 30), retention.RetainUntil)

	require.False(t, s3.ObjectLockConfiguration{}.DefaultVersionRetention(createdAt).Enabled())
	require.False(t, s3.ObjectLockConfiguration{Enabled: true}.DefaultVersionRetention(createdAt).Enabled())
}

func TestVersioningState(t *testing.T) {
	require.True(t, s3.VersioningEnabled.Enabled())
	require.True(t, s3.VersioningSuspended.Suspended())
	require.False(t, s3.VersioningUnset.Enabled())

	require.NoError(t, s3.VersioningEnabled.Validate())
	require.NoError(t, s3.VersioningSuspended.Validate())
	require.Error(t, s3.VersioningUnset.Validate())
	require.Error(t, s3.VersioningState("Paused").Validate())
}

// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package metabase

import (
	"context"
	"time"

	"github.com/shellnoq/hafiz/s3"
)

// MayDeleteOrOverwrite is the lock check run before any destructive
// mutation of a version. Legal hold and active retention each block on
// their own; governance retention yields to the bypass permission,
// compliance retention yields to nobody, the bucket owner included.
func MayDeleteOrOverwrite(version ObjectVersion, now time.Time, bypassGovernance bool) error {
	if version.LegalHold == s3.LegalHoldOn {
		return s3.ErrInvalidObjectState.New("version %s is under legal hold", version.VersionID)
	}
	if version.Retention.Blocks(now, bypassGovernance) {
		if version.Retention.Mode == s3.RetentionGovernance {
			return s3.ErrAccessDenied.New("version %s is under governance retention until %s",
				version.VersionID, version.Retention.RetainUntil.Format(time.RFC3339))
		}
		return s3.ErrInvalidObjectState.New("version %s is under compliance retention until %s",
			version.VersionID, version.Retention.RetainUntil.Format(time.RFC3339))
	}
	return nil
}

// GetObjectLockConfiguration returns the bucket's lock configuration.
func (db *DB) GetObjectLockConfiguration(ctx context.Context, bucket string) (_ s3.ObjectLockConfiguration, err error) {
	defer mon.Task()(&ctx)(&err)

	record, err := db.GetBucket(ctx, bucket)
	if err != nil {
		return s3.ObjectLockConfiguration{}, err
	}
	return record.ObjectLock, nil
}

// PutObjectLockConfiguration updates the default retention of a
// lock-enabled bucket. The lock switch itself is immutable: it can be set
// only at bucket creation and never turned off.
func (db *DB) PutObjectLockConfiguration(ctx context.Context, bucket string, config s3.ObjectLockConfiguration) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := config.Validate(); err != nil {
		return err
	}
	return db.updateBucket(ctx, bucket, func(record *Bucket) error {
		switch {
		case !record.ObjectLock.Enabled && config.Enabled:
			return s3.ErrInvalidBucketState.New("object lock can only be enabled at bucket creation")
		case record.ObjectLock.Enabled && !config.Enabled:
			return s3.ErrInvalidArgument.New("object lock cannot be disabled")
		}
		record.ObjectLock = config
		return nil
	})
}

// PutObjectRetention sets or replaces the retention of one version (the
// latest when versionID is empty). Active compliance retention may only be
// extended; weakening active governance retention needs the bypass
// permission.
func (db *DB) PutObjectRetention(ctx context.Context, bucket, key, versionID string, retention s3.Retention, bypassGovernance bool) (err error) {
	defer mon.Task()(&ctx)(&err)

	record, err := db.GetBucket(ctx, bucket)
	if err != nil {
		return err
	}
	if !record.ObjectLock.Enabled {
		return s3.ErrInvalidArgument.New("bucket %s does not have object lock enabled", bucket)
	}
	if err := retention.Validate(); err != nil {
		return err
	}
	now := db.now().UTC()
	if retention.Enabled() && !retention.RetainUntil.After(now) {
		return s3.ErrInvalidArgument.New("retain until date must be in the future")
	}

	return db.updateChain(ctx, bucket, key, func(chain *chainRecord) error {
		i, err := resolveVersion(chain, bucket, key, versionID)
		if err != nil {
			return err
		}
		version := &chain.Versions[i]
		if version.IsDeleteMarker {
			return s3.ErrMethodNotAllowed.New("delete markers carry no retention")
		}

		existing := version.Retention
		if existing.Active(now) {
			switch existing.Mode {
			case s3.RetentionCompliance:
				if retention.Mode != s3.RetentionCompliance || retention.RetainUntil.Before(existing.RetainUntil) {
					return s3.ErrInvalidObjectState.New("compliance retention can only be extended")
				}
			case s3.RetentionGovernance:
				weakened := !retention.Enabled() || retention.RetainUntil.Before(existing.RetainUntil)
				if weakened && !bypassGovernance {
					return s3.ErrAccessDenied.New("governance retention cannot be weakened without bypass")
				}
			}
		}
		version.Retention = retention
		return nil
	})
}

// GetObjectRetention returns the retention of one version, the zero value
// meaning none is set.
func (db *DB) GetObjectRetention(ctx context.Context, bucket, key, versionID string) (_ s3.Retention, err error) {
	defer mon.Task()(&ctx)(&err)

	record, err := db.GetBucket(ctx, bucket)
	if err != nil {
		return s3.Retention{}, err
	}
	if !record.ObjectLock.Enabled {
		return s3.Retention{}, s3.ErrInvalidArgument.New("bucket %s does not have object lock enabled", bucket)
	}
	chain, err := db.getChain(ctx, bucket, key)
	if err != nil {
		return s3.Retention{}, err
	}
	i, err := resolveVersion(&chain, bucket, key, versionID)
	if err != nil {
		return s3.Retention{}, err
	}
	if chain.Versions[i].IsDeleteMarker {
		return s3.Retention{}, s3.ErrMethodNotAllowed.New("delete markers carry no retention")
	}
	return chain.Versions[i].Retention, nil
}

// PutObjectLegalHold switches the legal hold of one version.
func (db *DB) PutObjectLegalHold(ctx context.Context, bucket, key, versionID string, status s3.LegalHoldStatus) (err error) {
	defer mon.Task()(&ctx)(&err)

	record, err := db.GetBucket(ctx, bucket)
	if err != nil {
		return err
	}
	if !record.ObjectLock.Enabled {
		return s3.ErrInvalidArgument.New("bucket %s does not have object lock enabled", bucket)
	}
	if err := status.Validate(); err != nil {
		return err
	}

	return db.updateChain(ctx, bucket, key, func(chain *chainRecord) error {
		i, err := resolveVersion(chain, bucket, key, versionID)
		if err != nil {
			return err
		}
		if chain.Versions[i].IsDeleteMarker {
			return s3.ErrMethodNotAllowed.New("delete markers carry no legal hold")
		}
		chain.Versions[i].LegalHold = status
		return nil
	})
}

// GetObjectLegalHold reports the legal hold of one version; versions never
// touched by a hold report OFF.
func (db *DB) GetObjectLegalHold(ctx context.Context, bucket, key, versionID string) (_ s3.LegalHoldStatus, err error) {
	defer mon.Task()(&ctx)(&err)

	record, err := db.GetBucket(ctx, bucket)
	if err != nil {
		return "", err
	}
	if !record.ObjectLock.Enabled {
		return "", s3.ErrInvalidArgument.New("bucket %s does not have object lock enabled", bucket)
	}
	chain, err := db.getChain(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	i, err := resolveVersion(&chain, bucket, key, versionID)
	if err != nil {
		return "", err
	}
	if chain.Versions[i].IsDeleteMarker {
		return "", s3.ErrMethodNotAllowed.New("delete markers carry no legal hold")
	}
	if chain.Versions[i].LegalHold == "" {
		return s3.LegalHoldOff, nil
	}
	return chain.Versions[i].LegalHold, nil
}

// resolveVersion locates versionID in the chain, defaulting to the latest
// when empty.
func resolveVersion(chain *chainRecord, bucket, key, versionID string) (int, error) {
	if len(chain.Versions) == 0 {
		return 0, s3.ErrNoSuchKey.New("%s/%s", bucket, key)
	}
	if versionID == "" {
		return 0, nil
	}
	if i := chain.find(versionID); i >= 0 {
		return i, nil
	}
	return 0, s3.ErrNoSuchKey.New("%s/%s version %s", bucket, key, versionID)
}

// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shellnoq/hafiz/internal/sync2"
	"github.com/shellnoq/hafiz/metabase"
	"github.com/shellnoq/hafiz/s3"
)

// SweeperConfig configures the abandoned-upload sweeper.
type SweeperConfig struct {
	Interval time.Duration `help:"how often to scan for abandoned multipart uploads" default:"1h"`
	TTL      time.Duration `help:"age after which an unfinished multipart upload is aborted" default:"168h"`
}

// Sweeper aborts multipart uploads left unfinished longer than the TTL.
// Uploads stuck mid-complete count as unfinished too: aborting one only
// clears its records, never an already assembled version.
type Sweeper struct {
	log    *zap.Logger
	db     *metabase.DB
	config SweeperConfig

	Loop *sync2.Cycle

	now func() time.Time
}

// NewSweeper creates a sweeper over the metabase.
func NewSweeper(log *zap.Logger, db *metabase.DB, config SweeperConfig) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.TTL <= 0 {
		config.TTL = 7 * 24 * time.Hour
	}
	return &Sweeper{
		log:    log,
		db:     db,
		config: config,
		Loop:   sync2.NewCycle(config.Interval),
		now:    time.Now,
	}
}

// TestingSetNow overrides the sweeper's clock.
func (sweeper *Sweeper) TestingSetNow(now func() time.Time) {
	sweeper.now = now
}

// Run sweeps immediately and then on every tick until the context is
// canceled. A failed pass is logged and retried on the next tick.
func (sweeper *Sweeper) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return sweeper.Loop.Run(ctx, func(ctx context.Context) error {
		if err := sweeper.Sweep(ctx); err != nil {
			sweeper.log.Error("sweep failed", zap.Error(err))
		}
		return nil
	})
}

// Sweep performs one pass over every bucket, aborting uploads initiated
// more than the TTL ago.
func (sweeper *Sweeper) Sweep(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	cutoff := sweeper.now().UTC().Add(-sweeper.config.TTL)
	buckets, err := sweeper.db.ListBuckets(ctx)
	if err != nil {
		return err
	}

	var swept, kept int64
	for _, bucket := range buckets {
		s, k, err := sweeper.sweepBucket(ctx, bucket.Name, cutoff)
		swept += s
		kept += k
		if err != nil {
			return err
		}
	}

	if swept > 0 {
		sweeper.log.Info("aborted stale multipart uploads",
			zap.Int64("aborted", swept),
			zap.Time("cutoff", cutoff))
	}
	mon.IntVal("sweep_aborted").Observe(swept)
	mon.IntVal("sweep_kept").Observe(kept)
	return nil
}

func (sweeper *Sweeper) sweepBucket(ctx context.Context, bucket string, cutoff time.Time) (swept, kept int64, err error) {
	var opts metabase.ListUploadsOptions
	for {
		page, err := sweeper.db.ListUploads(ctx, bucket, opts)
		if err != nil {
			if s3.ErrNoSuchBucket.Has(err) {
				// the bucket went away mid-pass
				return swept, kept, nil
			}
			return swept, kept, err
		}

		for _, upload := range page.Uploads {
			if upload.InitiatedAt.After(cutoff) {
				kept++
				continue
			}
			err := sweeper.db.AbortUpload(ctx, upload.Bucket, upload.Key, upload.UploadID)
			if err != nil {
				if s3.ErrNoSuchBucket.Has(err) {
					return swept, kept, nil
				}
				// keep sweeping, this upload stays for the next pass
				sweeper.log.Warn("aborting stale upload failed",
					zap.String("bucket", upload.Bucket),
					zap.String("key", upload.Key),
					zap.String("upload", upload.UploadID),
					zap.Error(err))
				kept++
				continue
			}
			sweeper.log.Debug("aborted stale upload",
				zap.String("bucket", upload.Bucket),
				zap.String("key", upload.Key),
				zap.String("upload", upload.UploadID),
				zap.Time("initiated", upload.InitiatedAt))
			swept++
		}

		if !page.Truncated {
			return swept, kept, nil
		}
		opts.KeyMarker = page.NextKeyMarker
		opts.UploadIDMarker = page.NextUploadIDMarker
	}
}

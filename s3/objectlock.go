// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package s3

import "time"

// Retention ranges accepted for default bucket retention.
const (
	MaxRetentionDays  = 36500
	MaxRetentionYears = 100
)

// RetentionMode is the strictness tier of a retention period.
type RetentionMode string

// Retention modes. GOVERNANCE may be bypassed by principals holding the
// bypass permission; COMPLIANCE may not be bypassed by anyone, the bucket
// owner included.
const (
	RetentionGovernance RetentionMode = "GOVERNANCE"
	RetentionCompliance RetentionMode = "COMPLIANCE"
)

// Validate checks the mode is one of the two tiers.
func (mode RetentionMode) Validate() error {
	switch mode {
	case RetentionGovernance, RetentionCompliance:
		return nil
	default:
		return ErrInvalidArgument.New("unknown retention mode %q", string(mode))
	}
}

// Retention pins a specific object version until RetainUntil. The zero
// value means no retention.
type Retention struct {
	Mode        RetentionMode `json:"mode"`
	RetainUntil time.Time     `json:"retainUntil"`
}

// Enabled reports whether any retention is set.
func (r Retention) Enabled() bool { return r.Mode != "" }

// Active reports whether the retention period is still running at now.
func (r Retention) Active(now time.Time) bool {
	return r.Enabled() && now.Before(r.RetainUntil)
}

// Blocks reports whether retention forbids destroying the version at now.
// GOVERNANCE yields to the bypass permission, COMPLIANCE never does.
func (r Retention) Blocks(now time.Time, bypassGovernance bool) bool {
	if !r.Active(now) {
		return false
	}
	if r.Mode == RetentionGovernance && bypassGovernance {
		return false
	}
	return true
}

// Validate checks mode and timestamp consistency.
func (r Retention) Validate() error {
	if !r.Enabled() {
		if !r.RetainUntil.IsZero() {
			return ErrInvalidArgument.New("retain until date requires a retention mode")
		}
		return nil
	}
	if err := r.Mode.Validate(); err != nil {
		return err
	}
	if r.RetainUntil.IsZero() {
		return ErrInvalidArgument.New("retention mode requires a retain until date")
	}
	return nil
}

// LegalHoldStatus is the on/off state of a legal hold. A hold has no
// expiry; only an explicit OFF releases it.
type LegalHoldStatus string

// Legal hold states.
const (
	LegalHoldOn  LegalHoldStatus = "ON"
	LegalHoldOff LegalHoldStatus = "OFF"
)

// Validate checks the status is one a client may set.
func (status LegalHoldStatus) Validate() error {
	switch status {
	case LegalHoldOn, LegalHoldOff:
		return nil
	default:
		return ErrInvalidArgument.New("unknown legal hold status %q", string(status))
	}
}

// DefaultRetention is the retention a lock-enabled bucket stamps onto new
// versions. Exactly one of Days or Years must be set.
type DefaultRetention struct {
	Mode  RetentionMode `json:"mode"`
	Days  int           `json:"days,omitempty"`
	Years int           `json:"years,omitempty"`
}

// Validate checks mode and period ranges.
func (d DefaultRetention) Validate() error {
	if err := d.Mode.Validate(); err != nil {
		return err
	}
	switch {
	case d.Days != 0 && d.Years != 0:
		return ErrInvalidArgument.New("default retention cannot set both days and years")
	case d.Days != 0:
		if d.Days < 0 || d.Days > MaxRetentionDays {
			return ErrInvalidArgument.New("default retention days must be within 1 and %d", MaxRetentionDays)
		}
	case d.Years != 0:
		if d.Years < 0 || d.Years > MaxRetentionYears {
			return ErrInvalidArgument.New("default retention years must be within 1 and %d", MaxRetentionYears)
		}
	default:
		return ErrInvalidArgument.New("default retention requires days or years")
	}
	return nil
}

// RetainUntil computes the retention deadline for a version created at the
// given time.
func (d DefaultRetention) RetainUntil(from time.Time) time.Time {
	if d.Years != 0 {
		return from.AddDate(0, 0, d.Years*365)
	}
	return from.AddDate(0, 0, d.Days)
}

// ObjectLockConfiguration is the bucket-level lock switch. It is decided
// at bucket creation and cannot be turned on later.
type ObjectLockConfiguration struct {
	Enabled          bool              `json:"enabled"`
	DefaultRetention *DefaultRetention `json:"defaultRetention,omitempty"`
}

// Validate checks the configuration shape.
func (c ObjectLockConfiguration) Validate() error {
	if !c.Enabled {
		if c.DefaultRetention != nil {
			return ErrInvalidArgument.New("default retention requires object lock")
		}
		return nil
	}
	if c.DefaultRetention != nil {
		return c.DefaultRetention.Validate()
	}
	return nil
}

// DefaultVersionRetention returns the retention to stamp onto a version
// created at the given time, or the zero Retention when the bucket sets no
// default.
func (c ObjectLockConfiguration) DefaultVersionRetention(createdAt time.Time) Retention {
	if !c.Enabled || c.DefaultRetention == nil {
		return Retention{}
	}
	return Retention{
		Mode:        c.DefaultRetention.Mode,
		RetainUntil: c.DefaultRetention.RetainUntil(createdAt),
	}
}

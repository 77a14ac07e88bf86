// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package s3

// NullVersionID is the reserved version id of the unversioned slot in a
// version chain. Objects written while versioning is off or suspended live
// under this id.
const NullVersionID = "null"

// VersioningState is the versioning configuration of a bucket. Buckets
// start unset; once enabled, versioning can only be suspended, never unset
// again.
type VersioningState string

// Versioning states.
const (
	VersioningUnset     VersioningState = ""
	VersioningEnabled   VersioningState = "Enabled"
	VersioningSuspended VersioningState = "Suspended"
)

// Enabled reports whether new writes create distinct versions.
func (state VersioningState) Enabled() bool { return state == VersioningEnabled }

// Suspended reports whether writes overwrite the null version slot.
func (state VersioningState) Suspended() bool { return state == VersioningSuspended }

// Validate checks that the state is one a client may configure.
func (state VersioningState) Validate() error {
	switch state {
	case VersioningEnabled, VersioningSuspended:
		return nil
	case VersioningUnset:
		return ErrInvalidArgument.New("versioning state must be Enabled or Suspended")
	default:
		return ErrInvalidArgument.New("unknown versioning state %q", string(state))
	}
}

// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package s3

import "strings"

// Action names an operation the way bucket policies refer to it.
type Action string

// Actions evaluated by the policy engine.
const (
	ActionAll Action = "s3:*"

	ActionGetObject           Action = "s3:GetObject"
	ActionGetObjectVersion    Action = "s3:GetObjectVersion"
	ActionPutObject           Action = "s3:PutObject"
	ActionDeleteObject        Action = "s3:DeleteObject"
	ActionDeleteObjectVersion Action = "s3:DeleteObjectVersion"

	ActionListBucket         Action = "s3:ListBucket"
	ActionListBucketVersions Action = "s3:ListBucketVersions"
	ActionCreateBucket       Action = "s3:CreateBucket"
	ActionDeleteBucket       Action = "s3:DeleteBucket"

	ActionGetBucketPolicy    Action = "s3:GetBucketPolicy"
	ActionPutBucketPolicy    Action = "s3:PutBucketPolicy"
	ActionDeleteBucketPolicy Action = "s3:DeleteBucketPolicy"

	ActionGetBucketVersioning Action = "s3:GetBucketVersioning"
	ActionPutBucketVersioning Action = "s3:PutBucketVersioning"

	ActionListBucketMultipartUploads Action = "s3:ListBucketMultipartUploads"
	ActionListMultipartUploadParts   Action = "s3:ListMultipartUploadParts"
	ActionAbortMultipartUpload       Action = "s3:AbortMultipartUpload"

	ActionGetObjectRetention Action = "s3:GetObjectRetention"
	ActionPutObjectRetention Action = "s3:PutObjectRetention"
	ActionGetObjectLegalHold Action = "s3:GetObjectLegalHold"
	ActionPutObjectLegalHold Action = "s3:PutObjectLegalHold"

	ActionGetBucketObjectLockConfiguration Action = "s3:GetBucketObjectLockConfiguration"
	ActionPutBucketObjectLockConfiguration Action = "s3:PutBucketObjectLockConfiguration"

	// ActionBypassGovernanceRetention is a permission, not an operation: a
	// principal allowed this action may override GOVERNANCE mode retention.
	ActionBypassGovernanceRetention Action = "s3:BypassGovernanceRetention"
)

// Match reports whether the action is covered by a policy action pattern.
// Patterns support "*" both bare and embedded ("s3:Get*").
func (action Action) Match(pattern string) bool {
	if pattern == "*" || pattern == string(ActionAll) {
		return true
	}
	if !strings.ContainsAny(pattern, "*?") {
		return string(action) == pattern
	}
	return MatchWildcard(pattern, string(action))
}

// MatchWildcard reports whether name matches pattern, where "*" spans any
// run of characters and "?" exactly one.
func MatchWildcard(pattern, name string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if MatchWildcard(pattern[1:], name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
		}
		pattern = pattern[1:]
		name = name[1:]
	}
	return len(name) == 0
}

// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package s3

import "strings"

// Resource names use the ARN form clients put in bucket policies. Policies
// written against either partition spell the same resources, so matching
// normalizes both.
const (
	arnPrefix       = "arn:aws:s3:::"
	arnPrefixLegacy = "arn:hafiz:s3:::"
)

// BucketARN returns the resource name of a bucket.
func BucketARN(bucket string) string {
	return arnPrefix + bucket
}

// ObjectARN returns the resource name of an object.
func ObjectARN(bucket, key string) string {
	return arnPrefix + bucket + "/" + key
}

func trimARN(s string) string {
	if trimmed := strings.TrimPrefix(s, arnPrefix); trimmed != s {
		return trimmed
	}
	return strings.TrimPrefix(s, arnPrefixLegacy)
}

// MatchResource reports whether the resource ARN is covered by a policy
// resource pattern. A trailing "/*" covers every object in the bucket,
// including the empty key.
func MatchResource(pattern, resource string) bool {
	if pattern == "*" {
		return true
	}
	pattern, resource = trimARN(pattern), trimARN(resource)
	if pattern == resource {
		return true
	}
	// "bucket/*" must also match "bucket/" style keys that path globbing
	// would reject.
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok && !strings.ContainsAny(prefix, "*?") {
		if strings.HasPrefix(resource, prefix+"/") {
			return true
		}
	}
	return MatchWildcard(pattern, resource)
}

// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package policy

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/shellnoq/hafiz/s3"
)

// RequestContext carries the request attributes condition blocks test.
type RequestContext struct {
	SourceIP        net.IP
	SecureTransport bool
	CurrentTime     time.Time
	// Username is the caller's account id; empty for anonymous.
	Username string
	// Keys holds additional context values such as "s3:prefix".
	Keys map[string]string
}

// Get resolves a condition key. Key names compare case-insensitively.
func (rctx RequestContext) Get(key string) (string, bool) {
	switch strings.ToLower(key) {
	case "aws:sourceip":
		if rctx.SourceIP == nil {
			return "", false
		}
		return rctx.SourceIP.String(), true
	case "aws:securetransport":
		return strconv.FormatBool(rctx.SecureTransport), true
	case "aws:currenttime":
		return rctx.CurrentTime.UTC().Format(time.RFC3339), true
	case "aws:username":
		if rctx.Username == "" {
			return "", false
		}
		return rctx.Username, true
	}
	for name, value := range rctx.Keys {
		if strings.EqualFold(name, key) {
			return value, true
		}
	}
	return "", false
}

const ifExistsSuffix = "IfExists"

// Eval reports whether every operator block holds. Within a block every
// key must hold; within a key the values are alternatives. An operator
// outside the known set never holds, so its statement never matches.
func (conditions ConditionMap) Eval(rctx RequestContext) bool {
	for operator, keys := range conditions {
		ifExists := strings.HasSuffix(operator, ifExistsSuffix)
		base := strings.TrimSuffix(operator, ifExistsSuffix)

		for key, values := range keys {
			actual, exists := rctx.Get(key)

			if base == "Null" {
				if !evalNull(values, exists) {
					return false
				}
				continue
			}

			if !exists {
				if ifExists {
					continue
				}
				return false
			}
			if !evalOperator(base, actual, values) {
				return false
			}
		}
	}
	return true
}

// evalNull holds when the key's absence agrees with the expected value:
// "true" expects the key to be missing.
func evalNull(values StringOrSlice, exists bool) bool {
	for _, value := range values {
		expectMissing := strings.EqualFold(value, "true")
		if expectMissing == !exists {
			return true
		}
	}
	return false
}

func evalOperator(operator, actual string, values StringOrSlice) bool {
	switch operator {
	case "StringEquals":
		return anyValue(values, func(v string) bool { return v == actual })
	case "StringNotEquals":
		return !anyValue(values, func(v string) bool { return v == actual })
	case "StringLike":
		return anyValue(values, func(v string) bool { return s3.MatchWildcard(v, actual) })
	case "StringNotLike":
		return !anyValue(values, func(v string) bool { return s3.MatchWildcard(v, actual) })
	case "IpAddress":
		ip := net.ParseIP(actual)
		return anyValue(values, func(v string) bool { return ipMatches(v, ip) })
	case "NotIpAddress":
		ip := net.ParseIP(actual)
		return !anyValue(values, func(v string) bool { return ipMatches(v, ip) })
	case "DateGreaterThan":
		actualTime, err := time.Parse(time.RFC3339, actual)
		if err != nil {
			return false
		}
		return anyValue(values, func(v string) bool {
			bound, err := time.Parse(time.RFC3339, v)
			return err == nil && actualTime.After(bound)
		})
	case "DateLessThan":
		actualTime, err := time.Parse(time.RFC3339, actual)
		if err != nil {
			return false
		}
		return anyValue(values, func(v string) bool {
			bound, err := time.Parse(time.RFC3339, v)
			return err == nil && actualTime.Before(bound)
		})
	case "Bool":
		return anyValue(values, func(v string) bool { return strings.EqualFold(v, actual) })
	default:
		// outside the known operator set
		return false
	}
}

func anyValue(values StringOrSlice, match func(string) bool) bool {
	for _, value := range values {
		if match(value) {
			return true
		}
	}
	return false
}

// ipMatches accepts CIDR blocks and bare addresses.
func ipMatches(pattern string, ip net.IP) bool {
	if ip == nil {
		return false
	}
	if _, network, err := net.ParseCIDR(pattern); err == nil {
		return network.Contains(ip)
	}
	if parsed := net.ParseIP(pattern); parsed != nil {
		return parsed.Equal(ip)
	}
	return false
}

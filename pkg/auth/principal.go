// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package auth

import "fmt"

// Principal identifies who issued a request, after authentication.
type Principal struct {
	// Anonymous is set for unsigned requests. All other fields are
	// empty then.
	Anonymous bool

	AccessKeyID string
	AccountID   string
	// Root marks the account owner's credential.
	Root bool
}

// Anonymous is the principal of unsigned requests.
var Anonymous = Principal{Anonymous: true}

// principalOf builds the principal a verified credential represents.
func principalOf(cred Credential) Principal {
	return Principal{
		AccessKeyID: cred.AccessKeyID,
		AccountID:   cred.AccountID,
		Root:        cred.Root,
	}
}

// Identifiers returns the names a bucket policy may match this principal
// by. Anonymous principals match only the wildcard.
func (principal Principal) Identifiers() []string {
	if principal.Anonymous {
		return nil
	}
	ids := []string{principal.AccountID, principal.AccessKeyID}
	if principal.Root {
		ids = append(ids, fmt.Sprintf("arn:aws:iam::%s:root", principal.AccountID))
	}
	return ids
}

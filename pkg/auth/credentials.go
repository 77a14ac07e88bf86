// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package auth implements AWS Signature Version 4 verification and the
// credentials it authenticates against.
package auth

import (
	"context"
	"crypto/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	"github.com/zeebo/errs"

	"github.com/shellnoq/hafiz/s3"
)

// Error is the default auth error class.
var Error = errs.Class("auth error")

// Credential is one access key with its signing secret.
type Credential struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	AccountID       string `json:"account_id"`
	// Root credentials carry the bucket owner's implicit permissions.
	Root      bool      `json:"root"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	accessKeyBytes = 12
	secretKeyBytes = 30
)

// GenerateCredential creates a new enabled credential for the account.
func GenerateCredential(accountID string, root bool) (Credential, error) {
	accessKeyID, err := generateKey(accessKeyBytes)
	if err != nil {
		return Credential{}, err
	}
	secretAccessKey, err := generateKey(secretKeyBytes)
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		AccountID:       accountID,
		Root:            root,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func generateKey(size int) (string, error) {
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		return "", Error.Wrap(err)
	}
	return base58.Encode(data), nil
}

// CredentialStore resolves access key ids to credentials. Unknown and
// disabled access keys are indistinguishable to the caller, so a
// signature failure never reveals whether a key exists.
type CredentialStore interface {
	Lookup(ctx context.Context, accessKeyID string) (Credential, error)
}

// Registry is an in-memory CredentialStore. Lookups read an immutable
// snapshot; updates copy the whole set, so reads never block.
type Registry struct {
	mu       sync.Mutex
	snapshot atomic.Value // map[string]Credential
}

// NewRegistry creates an empty credential registry.
func NewRegistry() *Registry {
	registry := &Registry{}
	registry.snapshot.Store(map[string]Credential{})
	return registry
}

// Lookup implements CredentialStore.
func (registry *Registry) Lookup(ctx context.Context, accessKeyID string) (Credential, error) {
	creds := registry.snapshot.Load().(map[string]Credential)
	cred, ok := creds[accessKeyID]
	if !ok || cred.Disabled {
		return Credential{}, s3.ErrInvalidAccessKeyID.New("%s", accessKeyID)
	}
	return cred, nil
}

// Set adds or replaces a credential.
func (registry *Registry) Set(cred Credential) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	old := registry.snapshot.Load().(map[string]Credential)
	next := make(map[string]Credential, len(old)+1)
	for key, value := range old {
		next[key] = value
	}
	next[cred.AccessKeyID] = cred
	registry.snapshot.Store(next)
}

// Remove drops a credential.
func (registry *Registry) Remove(accessKeyID string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	old := registry.snapshot.Load().(map[string]Credential)
	next := make(map[string]Credential, len(old))
	for key, value := range old {
		if key != accessKeyID {
			next[key] = value
		}
	}
	registry.snapshot.Store(next)
}

// ReplaceAll swaps the registry contents for the given credentials.
func (registry *Registry) ReplaceAll(creds []Credential) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	next := make(map[string]Credential, len(creds))
	for _, cred := range creds {
		next[cred.AccessKeyID] = cred
	}
	registry.snapshot.Store(next)
}

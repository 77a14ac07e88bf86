// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellnoq/hafiz/internal/testcontext"
	"github.com/shellnoq/hafiz/pkg/auth"
	"github.com/shellnoq/hafiz/s3"
)

func TestGenerateCredential(t *testing.T) {
	first, err := auth.GenerateCredential("acct-1", true)
	require.NoError(t, err)
	second, err := auth.GenerateCredential("acct-1", false)
	require.NoError(t, err)

	require.NotEmpty(t, first.AccessKeyID)
	require.NotEmpty(t, first.SecretAccessKey)
	require.NotEqual(t, first.AccessKeyID, second.AccessKeyID)
	require.NotEqual(t, first.SecretAccessKey, second.SecretAccessKey)
	require.True(t, first.Root)
	require.False(t, second.Root)
	require.False(t, first.Disabled)
}

func TestRegistry(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	registry := auth.NewRegistry()

	cred, err := auth.GenerateCredential("acct-1", false)
	require.NoError(t, err)

	_, err = registry.Lookup(ctx, cred.AccessKeyID)
	require.True(t, s3.ErrInvalidAccessKeyID.Has(err), "lookup before set: %v", err)

	registry.Set(cred)
	found, err := registry.Lookup(ctx, cred.AccessKeyID)
	require.NoError(t, err)
	require.Equal(t, cred, found)

	// disabled keys answer like unknown ones
	disabled := cred
	disabled.Disabled = true
	registry.Set(disabled)
	_, err = registry.Lookup(ctx, cred.AccessKeyID)
	require.True(t, s3.ErrInvalidAccessKeyID.Has(err), "disabled lookup: %v", err)

	registry.Set(cred)
	registry.Remove(cred.AccessKeyID)
	_, err = registry.Lookup(ctx, cred.AccessKeyID)
	require.True(t, s3.ErrInvalidAccessKeyID.Has(err), "removed lookup: %v", err)

	// lookups race against writers without guarding locks
	registry.Set(cred)
	for worker := 0; worker < 4; worker++ {
		ctx.Go(func() error {
			for i := 0; i < 100; i++ {
				if _, err := registry.Lookup(ctx, cred.AccessKeyID); err != nil {
					return err
				}
			}
			return nil
		})
	}
	ctx.Go(func() error {
		for i := 0; i < 100; i++ {
			other, err := auth.GenerateCredential("acct-2", false)
			if err != nil {
				return err
			}
			registry.Set(other)
			registry.Remove(other.AccessKeyID)
		}
		return nil
	})
	ctx.Wait()
}

func TestRegistryReplaceAll(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	registry := auth.NewRegistry()

	old, err := auth.GenerateCredential("acct-1", false)
	require.NoError(t, err)
	registry.Set(old)

	next, err := auth.GenerateCredential("acct-2", true)
	require.NoError(t, err)
	registry.ReplaceAll([]auth.Credential{next})

	_, err = registry.Lookup(ctx, old.AccessKeyID)
	require.True(t, s3.ErrInvalidAccessKeyID.Has(err))

	found, err := registry.Lookup(ctx, next.AccessKeyID)
	require.NoError(t, err)
	require.True(t, found.Root)
}

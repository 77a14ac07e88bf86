// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/shellnoq/hafiz/internal/testcontext"
	"github.com/shellnoq/hafiz/storage/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := miniredis.RunT(t)

	store, err := NewClient(server.Addr(), "", 0)
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	testsuite.RunTests(t, store)
}

func TestNewClientFrom(t *testing.T) {
	server := miniredis.RunT(t)

	store, err := NewClientFrom("redis://" + server.Addr() + "?db=0")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = NewClientFrom("bolt://" + server.Addr())
	require.Error(t, err)
}

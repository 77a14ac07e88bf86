// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellnoq/hafiz/internal/testcontext"
	"github.com/shellnoq/hafiz/storage/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := New(ctx.File("bolt.db"), "records")
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	testsuite.RunTests(t, store)
}

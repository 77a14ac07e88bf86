// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package testcontext implements convenience context for testing.
package testcontext

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"
)

// Context is a context that tracks test goroutines and temporary files,
// ensuring that both get cleaned up when the test finishes.
type Context struct {
	context.Context
	group *errgroup.Group
	test  testing.TB

	once      sync.Once
	directory string
}

// New creates a new test context.
func New(test testing.TB) *Context {
	group, ctx := errgroup.WithContext(context.Background())
	return &Context{
		Context: ctx,
		group:   group,
		test:    test,
	}
}

// Go runs fn in a goroutine.
// Call Wait or Cleanup to check the result.
func (ctx *Context) Go(fn func() error) {
	ctx.test.Helper()
	ctx.group.Go(fn)
}

// Check calls fn and fails the test on error.
func (ctx *Context) Check(fn func() error) {
	ctx.test.Helper()
	err := fn()
	if err != nil {
		ctx.test.Fatal(err)
	}
}

// Wait blocks until all goroutines started with Go have completed
// and fails the test when any of them errored.
func (ctx *Context) Wait() {
	ctx.test.Helper()
	err := ctx.group.Wait()
	if err != nil {
		ctx.test.Fatal(err)
	}
}

// Dir creates a directory inside the test's temporary directory and
// returns its path.
func (ctx *Context) Dir(subs ...string) string {
	ctx.test.Helper()

	ctx.once.Do(func() {
		var err error
		pattern := strings.ReplaceAll(ctx.test.Name(), "/", "-")
		ctx.directory, err = os.MkdirTemp("", pattern)
		if err != nil {
			ctx.test.Fatal(err)
		}
	})

	dir := filepath.Join(append([]string{ctx.directory}, subs...)...)
	if err := os.MkdirAll(dir, 0744); err != nil {
		ctx.test.Fatal(err)
	}
	return dir
}

// File returns a path inside the test's temporary directory.
func (ctx *Context) File(subs ...string) string {
	ctx.test.Helper()

	if len(subs) == 0 {
		ctx.test.Fatal("expected more than one argument")
	}

	dir := ctx.Dir(subs[:len(subs)-1]...)
	return filepath.Join(dir, subs[len(subs)-1])
}

// Cleanup waits for everything to complete,
// checks errors and deletes the temporary directory.
func (ctx *Context) Cleanup() {
	ctx.test.Helper()

	defer ctx.deleteTemporary()
	err := ctx.group.Wait()
	if err != nil {
		ctx.test.Fatal(err)
	}
}

func (ctx *Context) deleteTemporary() {
	if ctx.directory == "" {
		return
	}
	err := os.RemoveAll(ctx.directory)
	if err != nil {
		ctx.test.Fatal(err)
	}
}

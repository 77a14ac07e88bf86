// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package testrand implements generating random base types for testing.
package testrand

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"
	"strings"
)

// Intn returns, as an int, a non-negative pseudo-random number in [0,n)
// from the default Source.
// It panics if n <= 0.
func Intn(n int) int {
	return rand.Intn(n)
}

// Int63n returns, as an int64, a non-negative pseudo-random number in [0,n)
// from the default Source.
// It panics if n <= 0.
func Int63n(n int64) int64 {
	return rand.Int63n(n)
}

// Read reads pseudo-random data into data.
func Read(data []byte) {
	const newSourceThreshold = 64
	if len(data) < newSourceThreshold {
		_, _ = rand.Read(data)
		return
	}

	src := rand.NewSource(rand.Int63())
	r := rand.New(src)
	_, _ = r.Read(data)
}

// Bytes generates size amount of random data.
func Bytes(size int) []byte {
	data := make([]byte, size)
	Read(data)
	return data
}

// Reader creates a new random data reader.
func Reader() io.Reader {
	return rand.New(rand.NewSource(rand.Int63()))
}

// BucketName creates a random valid bucket name.
func BucketName() string {
	return fmt.Sprintf("bucket-%s", hexN(12))
}

// ObjectKey creates a random object key with a few path segments.
func ObjectKey() string {
	segments := make([]string, 1+Intn(3))
	for i := range segments {
		segments[i] = hexN(4 + Intn(5))
	}
	return strings.Join(segments, "/")
}

func hexN(n int) string {
	data := make([]byte, (n+1)/2)
	Read(data)
	return hex.EncodeToString(data)[:n]
}

// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package storage

import (
	"context"
	"encoding/hex"
	"io"

	"github.com/zeebo/errs"
)

// ErrBlobNotFound is returned when a content id has no stored bytes.
var ErrBlobNotFound = errs.Class("blob not found")

// ErrInvalidContentID is returned when a content id fails to parse.
var ErrInvalidContentID = errs.Class("invalid content id")

// ContentID addresses stored content by its BLAKE2b-256 digest. Equal
// content always carries the equal id, which is what makes blob writes
// idempotent.
type ContentID [32]byte

// IsZero returns true when the id is unset.
func (id ContentID) IsZero() bool { return id == ContentID{} }

// String returns the hex form of the id.
func (id ContentID) String() string { return hex.EncodeToString(id[:]) }

// MarshalText implements encoding.TextMarshaler.
func (id ContentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ContentID) UnmarshalText(data []byte) error {
	parsed, err := ParseContentID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseContentID parses the hex form of a content id.
func ParseContentID(s string) (ContentID, error) {
	var id ContentID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, ErrInvalidContentID.Wrap(err)
	}
	if len(raw) != len(id) {
		return id, ErrInvalidContentID.New("wrong length %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Blobs stores raw object content addressed by digest. Put and Concat are
// idempotent: storing bytes that already exist succeeds and returns the
// existing id.
type Blobs interface {
	// Put stores the stream and returns its content id and size.
	Put(ctx context.Context, data io.Reader) (ContentID, int64, error)
	// Open returns a reader over the content, or ErrBlobNotFound.
	Open(ctx context.Context, id ContentID) (io.ReadCloser, error)
	// Size reports the content size, or ErrBlobNotFound.
	Size(ctx context.Context, id ContentID) (int64, error)
	// Delete removes the content. Deleting absent content is not an error.
	Delete(ctx context.Context, id ContentID) error
	// Concat stores the concatenation of the listed contents, in order,
	// and returns the combined content id and size.
	Concat(ctx context.Context, ids []ContentID) (ContentID, int64, error)
}

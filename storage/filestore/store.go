// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package filestore implements a content-addressed blob store on the
// local filesystem. Content ids are BLAKE2b-256 digests, so storing the
// same bytes twice lands on the same committed file.
package filestore

import (
	"context"
	"io"
	"os"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/shellnoq/hafiz/storage"
)

var (
	mon = monkit.Package()

	// Error is the default filestore error class.
	Error = errs.Class("filestore error")
)

// Store implements storage.Blobs on a local directory.
type Store struct {
	log *zap.Logger
	dir *Dir
}

// New creates a new filestore on the given directory.
func New(log *zap.Logger, dir *Dir) *Store {
	return &Store{log: log, dir: dir}
}

// NewAt creates a new filestore at the given path.
func NewAt(log *zap.Logger, path string) (*Store, error) {
	dir, err := NewDir(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return New(log, dir), nil
}

// Put stores the stream and returns its content id and size.
func (store *Store) Put(ctx context.Context, data io.Reader) (_ storage.ContentID, _ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	file, err := store.dir.CreateTemporaryFile(ctx)
	if err != nil {
		return storage.ContentID{}, 0, Error.Wrap(err)
	}

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return storage.ContentID{}, 0, Error.Wrap(errs.Combine(err, file.Close(), os.Remove(file.Name())))
	}

	size, err := io.Copy(io.MultiWriter(file, hasher), data)
	if err != nil {
		return storage.ContentID{}, 0, Error.Wrap(errs.Combine(err, file.Close(), os.Remove(file.Name())))
	}

	var id storage.ContentID
	copy(id[:], hasher.Sum(nil))

	if err := store.dir.Commit(ctx, file, id); err != nil {
		return storage.ContentID{}, 0, Error.Wrap(err)
	}

	mon.Meter("blob_put").Mark(1)
	mon.IntVal("blob_put_size").Observe(size)
	return id, size, nil
}

// Open returns a reader over the content.
func (store *Store) Open(ctx context.Context, id storage.ContentID) (_ io.ReadCloser, err error) {
	defer mon.Task()(&ctx)(&err)

	file, err := store.dir.Open(ctx, id)
	if err != nil {
		if storage.ErrBlobNotFound.Has(err) {
			return nil, err
		}
		return nil, Error.Wrap(err)
	}
	return file, nil
}

// Size reports the content size.
func (store *Store) Size(ctx context.Context, id storage.ContentID) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	info, err := store.dir.Stat(ctx, id)
	if err != nil {
		if storage.ErrBlobNotFound.Has(err) {
			return 0, err
		}
		return 0, Error.Wrap(err)
	}
	return info.Size(), nil
}

// Delete removes the content. Deleting absent content is not an error.
func (store *Store) Delete(ctx context.Context, id storage.ContentID) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(store.dir.Delete(ctx, id))
}

// Concat stores the concatenation of the listed contents, in order.
func (store *Store) Concat(ctx context.Context, ids []storage.ContentID) (_ storage.ContentID, _ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	readers := make([]io.Reader, 0, len(ids))
	closers := make([]io.Closer, 0, len(ids))
	defer func() {
		for _, closer := range closers {
			err = errs.Combine(err, closer.Close())
		}
	}()

	for _, id := range ids {
		file, err := store.Open(ctx, id)
		if err != nil {
			return storage.ContentID{}, 0, err
		}
		readers = append(readers, file)
		closers = append(closers, file)
	}

	return store.Put(ctx, io.MultiReader(readers...))
}

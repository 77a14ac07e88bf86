// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/errs"

	"github.com/shellnoq/hafiz/storage"
)

const (
	blobPermission = 0600
	dirPermission  = 0700
)

// Dir represents a single directory for storing blobs. Committed blobs
// live under blobs/, fanned out by the first byte of the content id;
// writes in flight live under temp/.
type Dir struct {
	path string
}

// NewDir returns a directory for storing blobs at path.
func NewDir(path string) (*Dir, error) {
	dir := &Dir{path: path}
	return dir, errs.Combine(
		os.MkdirAll(dir.blobsdir(), dirPermission),
		os.MkdirAll(dir.tempdir(), dirPermission),
	)
}

// Path returns the directory path.
func (dir *Dir) Path() string { return dir.path }

func (dir *Dir) blobsdir() string { return filepath.Join(dir.path, "blobs") }
func (dir *Dir) tempdir() string  { return filepath.Join(dir.path, "temp") }

// blobPath returns the committed location for the content id.
func (dir *Dir) blobPath(id storage.ContentID) string {
	hexed := id.String()
	return filepath.Join(dir.blobsdir(), hexed[:2], hexed[2:])
}

// CreateTemporaryFile creates a file for an in-flight write.
func (dir *Dir) CreateTemporaryFile(ctx context.Context) (*os.File, error) {
	return os.CreateTemp(dir.tempdir(), "blob-*.partial")
}

// Commit flushes the temporary file and moves it to its committed
// location. On failure the temporary file is removed.
func (dir *Dir) Commit(ctx context.Context, file *os.File, id storage.ContentID) error {
	position, seekErr := file.Seek(0, io.SeekCurrent)
	truncErr := file.Truncate(position)
	syncErr := file.Sync()
	chmodErr := file.Chmod(blobPermission)
	closeErr := file.Close()

	if seekErr != nil || truncErr != nil || syncErr != nil || chmodErr != nil || closeErr != nil {
		removeErr := os.Remove(file.Name())
		return errs.Combine(seekErr, truncErr, syncErr, chmodErr, closeErr, removeErr)
	}

	path := dir.blobPath(id)
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return errs.Combine(err, os.Remove(file.Name()))
	}
	if err := os.Rename(file.Name(), path); err != nil {
		return errs.Combine(err, os.Remove(file.Name()))
	}
	return nil
}

// Open opens the committed blob for reading.
func (dir *Dir) Open(ctx context.Context, id storage.ContentID) (*os.File, error) {
	file, err := os.Open(dir.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrBlobNotFound.New("%s", id)
		}
		return nil, err
	}
	return file, nil
}

// Stat returns info for the committed blob.
func (dir *Dir) Stat(ctx context.Context, id storage.ContentID) (os.FileInfo, error) {
	info, err := os.Stat(dir.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrBlobNotFound.New("%s", id)
		}
		return nil, err
	}
	return info, nil
}

// Delete removes the committed blob. Absent blobs are not an error.
func (dir *Dir) Delete(ctx context.Context, id storage.ContentID) error {
	err := os.Remove(dir.blobPath(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

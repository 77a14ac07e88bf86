// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package sqlitekv implements a KeyValueStore backed by a single SQLite
// database file. Keys live in a WITHOUT ROWID table clustered on the key,
// so range scans walk in byte order.
package sqlitekv

import (
	"bytes"
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/shellnoq/hafiz/storage"
)

var mon = monkit.Package()

// Error is the default sqlitekv error class.
var Error = errs.Class("sqlitekv error")

// Client is the entrypoint into an sqlite data store.
type Client struct {
	db   *sql.DB
	Path string
}

// New opens or creates the sqlite database at path.
func New(path string) (*Client, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	// sqlite allows a single writer; a second connection would fail with
	// SQLITE_BUSY instead of queueing behind it.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			k BLOB NOT NULL PRIMARY KEY,
			v BLOB NOT NULL
		) WITHOUT ROWID
	`)
	if err != nil {
		return nil, Error.Wrap(errs.Combine(err, db.Close()))
	}

	return &Client{db: db, Path: path}, nil
}

// Put saves the value under the key.
func (client *Client) Put(ctx context.Context, key storage.Key, value storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	_, err = client.db.ExecContext(ctx, `
		INSERT INTO kv(k, v) VALUES(?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v
	`, []byte(key), []byte(value))
	return Error.Wrap(err)
}

// Get looks up the value for the key.
func (client *Client) Get(ctx context.Context, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}

	var value []byte
	err = client.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, []byte(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storage.ErrKeyNotFound.New("%s", key)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return value, nil
}

// GetAll returns values aligned with keys; missing keys yield nil.
func (client *Client) GetAll(ctx context.Context, keys storage.Keys) (_ storage.Values, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(keys) > storage.LookupLimit {
		return nil, storage.ErrLimitExceeded
	}

	values := storage.Values{}
	for _, key := range keys {
		var value []byte
		err := client.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, []byte(key)).Scan(&value)
		switch {
		case err == sql.ErrNoRows:
			values = append(values, nil)
		case err != nil:
			return nil, Error.Wrap(err)
		default:
			values = append(values, value)
		}
	}
	return values, nil
}

// Delete removes the key.
func (client *Client) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	result, err := client.db.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, []byte(key))
	if err != nil {
		return Error.Wrap(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if affected == 0 {
		return storage.ErrKeyNotFound.New("%s", key)
	}
	return nil
}

// CompareAndSwap atomically replaces oldValue with newValue inside a
// transaction.
func (client *Client) CompareAndSwap(ctx context.Context, key storage.Key, oldValue, newValue storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	tx, err := client.db.BeginTx(ctx, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	commit := false
	defer func() {
		if !commit {
			err = errs.Combine(err, tx.Rollback())
		}
	}()

	var current []byte
	scanErr := tx.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, []byte(key)).Scan(&current)
	switch {
	case scanErr == sql.ErrNoRows:
		if oldValue != nil {
			return storage.ErrKeyNotFound.New("%s", key)
		}
		if newValue != nil {
			if _, err := tx.ExecContext(ctx, `INSERT INTO kv(k, v) VALUES(?, ?)`, []byte(key), []byte(newValue)); err != nil {
				return Error.Wrap(err)
			}
		}
	case scanErr != nil:
		return Error.Wrap(scanErr)
	default:
		if !bytes.Equal(current, oldValue) {
			return storage.ErrValueChanged.New("%s", key)
		}
		if newValue == nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, []byte(key)); err != nil {
				return Error.Wrap(err)
			}
		} else {
			if _, err := tx.ExecContext(ctx, `UPDATE kv SET v = ? WHERE k = ?`, []byte(newValue), []byte(key)); err != nil {
				return Error.Wrap(err)
			}
		}
	}

	commit = true
	return Error.Wrap(tx.Commit())
}

// Iterate iterates the selected keys in ascending byte order. The single
// sqlite connection is held for the duration of fn, so fn must not call
// back into the store.
func (client *Client) Iterate(ctx context.Context, opts storage.IterateOptions, fn func(context.Context, storage.Iterator) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	start := opts.Prefix
	if start.Less(opts.First) {
		start = opts.First
	}

	rows, err := client.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? ORDER BY k`, []byte(start))
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(rows.Close()))
	}()

	if err := fn(ctx, &rowIterator{rows: rows, prefix: opts.Prefix}); err != nil {
		return err
	}
	return Error.Wrap(rows.Err())
}

// Close closes the sqlite database.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}

type rowIterator struct {
	rows   *sql.Rows
	prefix storage.Key
	done   bool
}

func (it *rowIterator) Next(ctx context.Context, item *storage.ListItem) bool {
	if it.done || !it.rows.Next() {
		it.done = true
		return false
	}

	var key, value []byte
	if err := it.rows.Scan(&key, &value); err != nil {
		it.done = true
		return false
	}
	if !it.prefix.IsZero() && !storage.HasPrefix(storage.Key(key), it.prefix) {
		it.done = true
		return false
	}

	item.Key = storage.Key(key)
	item.Value = storage.Value(value)
	return true
}

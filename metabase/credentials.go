// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package metabase

import (
	"context"

	"go.uber.org/zap"

	"github.com/shellnoq/hafiz/pkg/auth"
	"github.com/shellnoq/hafiz/s3"
	"github.com/shellnoq/hafiz/storage"
)

// PutCredential stores a credential. Re-putting an access key id replaces
// the stored credential, which also re-enables a revoked one.
func (db *DB) PutCredential(ctx context.Context, cred auth.Credential) (err error) {
	defer mon.Task()(&ctx)(&err)

	if cred.AccessKeyID == "" {
		return s3.ErrInvalidArgument.New("access key id is empty")
	}
	value, err := encodeRecord(cred)
	if err != nil {
		return err
	}
	if err := db.kv.Put(ctx, credentialKey(cred.AccessKeyID), value); err != nil {
		return Error.Wrap(err)
	}

	db.log.Debug("credential stored",
		zap.String("access", cred.AccessKeyID),
		zap.String("account", cred.AccountID),
		zap.Bool("root", cred.Root))
	mon.Meter("credential_put").Mark(1)
	return nil
}

// GetCredential returns the stored credential, revoked ones included.
func (db *DB) GetCredential(ctx context.Context, accessKeyID string) (_ auth.Credential, err error) {
	defer mon.Task()(&ctx)(&err)

	raw, err := db.kv.Get(ctx, credentialKey(accessKeyID))
	if err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return auth.Credential{}, s3.ErrInvalidAccessKeyID.New("%s", accessKeyID)
		}
		return auth.Credential{}, Error.Wrap(err)
	}
	var cred auth.Credential
	if err := decodeRecord(raw, &cred); err != nil {
		return auth.Credential{}, err
	}
	return cred, nil
}

// Lookup implements auth.CredentialStore. Revoked credentials look exactly
// like unknown ones to keep the error from probing the key space.
func (db *DB) Lookup(ctx context.Context, accessKeyID string) (auth.Credential, error) {
	cred, err := db.GetCredential(ctx, accessKeyID)
	if err != nil {
		return auth.Credential{}, err
	}
	if cred.Disabled {
		return auth.Credential{}, s3.ErrInvalidAccessKeyID.New("%s", accessKeyID)
	}
	return cred, nil
}

// ListCredentials returns every stored credential in access key id order.
func (db *DB) ListCredentials(ctx context.Context) (creds []auth.Credential, err error) {
	defer mon.Task()(&ctx)(&err)

	err = db.kv.Iterate(ctx, storage.IterateOptions{Prefix: storage.Key(credentialKeyPrefix)}, func(ctx context.Context, it storage.Iterator) error {
		var item storage.ListItem
		for it.Next(ctx, &item) {
			var cred auth.Credential
			if err := decodeRecord(item.Value, &cred); err != nil {
				return err
			}
			creds = append(creds, cred)
		}
		return nil
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return creds, nil
}

// RevokeCredential disables the credential. Requests signed with it fail
// from the next lookup on; revoking twice is a no-op.
func (db *DB) RevokeCredential(ctx context.Context, accessKeyID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	storageKey := credentialKey(accessKeyID)
	for {
		old, err := db.kv.Get(ctx, storageKey)
		if err != nil {
			if storage.ErrKeyNotFound.Has(err) {
				return s3.ErrInvalidAccessKeyID.New("%s", accessKeyID)
			}
			return Error.Wrap(err)
		}
		var cred auth.Credential
		if err := decodeRecord(old, &cred); err != nil {
			return err
		}
		if cred.Disabled {
			return nil
		}
		cred.Disabled = true
		value, err := encodeRecord(cred)
		if err != nil {
			return err
		}
		err = db.kv.CompareAndSwap(ctx, storageKey, old, value)
		switch {
		case err == nil:
			db.log.Info("credential revoked", zap.String("access", accessKeyID))
			mon.Meter("credential_revoke").Mark(1)
			return nil
		case storage.ErrValueChanged.Has(err):
			continue
		case storage.ErrKeyNotFound.Has(err):
			return nil
		default:
			return Error.Wrap(err)
		}
	}
}

// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/segmentio/go-prompt"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/shellnoq/hafiz/pkg/auth"
	"github.com/shellnoq/hafiz/pkg/process"
)

func cmdCredentialsCreate(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)

	account := credentialsCreateCfg.Owner
	if len(args) > 0 {
		account = args[0]
	}
	if account == "" {
		return errs.New("an account id is required, pass one or configure --owner")
	}

	db, err := openDB(ctx, zap.L(), credentialsCreateCfg.Flags)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	cred, err := auth.GenerateCredential(account, credentialsCreateCfg.Root)
	if err != nil {
		return err
	}
	if err := db.PutCredential(ctx, cred); err != nil {
		return err
	}

	fmt.Println("Credential created for account", account+". The secret is shown only once:")
	fmt.Println("  Access Key ID:    ", cred.AccessKeyID)
	fmt.Println("  Secret Access Key:", cred.SecretAccessKey)
	return nil
}

func cmdCredentialsList(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)

	db, err := openDB(ctx, zap.L(), runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	creds, err := db.ListCredentials(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Access Key ID\tAccount\tKind\tStatus\tCreated\t")
	for _, cred := range creds {
		kind := "scoped"
		if cred.Root {
			kind = "root"
		}
		status := "active"
		if cred.Disabled {
			status = "revoked"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			cred.AccessKeyID, cred.AccountID, kind, status,
			cred.CreatedAt.UTC().Format(time.RFC3339))
	}
	return errs.Wrap(w.Flush())
}

func cmdCredentialsRevoke(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)
	accessKeyID := args[0]

	if !prompt.Confirm("Revoke access key %s? Every client using it is locked out and the key cannot be re-enabled. y/n\n", accessKeyID) {
		return nil
	}

	db, err := openDB(ctx, zap.L(), runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.RevokeCredential(ctx, accessKeyID); err != nil {
		return err
	}
	fmt.Println("Access key", accessKeyID, "revoked.")
	return nil
}

// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/shellnoq/hafiz/pkg/policy"
	"github.com/shellnoq/hafiz/pkg/process"
)

func cmdPolicySet(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)
	bucket, path := args[0], args[1]

	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(err)
	}
	if _, err := policy.Parse(data); err != nil {
		return err
	}

	db, err := openDB(ctx, zap.L(), runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.PutBucketPolicy(ctx, bucket, data); err != nil {
		return err
	}
	fmt.Println("Policy set on bucket", bucket+".")
	return nil
}

func cmdPolicyGet(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)

	db, err := openDB(ctx, zap.L(), runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	data, err := db.GetBucketPolicy(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(string(bytes.TrimRight(data, "\n")))
	return nil
}

func cmdPolicyDelete(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)

	db, err := openDB(ctx, zap.L(), runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.DeleteBucketPolicy(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("Policy removed from bucket", args[0]+".")
	return nil
}

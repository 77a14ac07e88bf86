// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Hafiz is an S3-compatible object storage core. This command manages a
// deployment: setup writes the initial configuration and the root
// credential, run keeps the maintenance chores going, and the
// credentials, policy and sweep commands administer a metabase directly.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/shellnoq/hafiz/gateway"
	"github.com/shellnoq/hafiz/metabase"
	"github.com/shellnoq/hafiz/pkg/auth"
	"github.com/shellnoq/hafiz/pkg/cfgstruct"
	"github.com/shellnoq/hafiz/pkg/process"
	"github.com/shellnoq/hafiz/storage/filestore"
)

// Flags gathers every tunable of a hafiz process.
type Flags struct {
	Database string `help:"metabase location, one of bolt://path, sqlite://path, redis://host/db or mem://" default:"bolt://$CONFDIR/metabase.db"`
	BlobsDir string `help:"directory object content is stored under" default:"$CONFDIR/blobs"`

	Owner string `help:"account id that owns the deployment" default:"admin" user:"true"`

	Metabase metabase.Config
	Sweeper  gateway.SweeperConfig
}

// credentialsCreateFlags adds the create-only knobs on top of the
// process configuration.
type credentialsCreateFlags struct {
	Flags

	Root bool `help:"give the new credential the bucket owner's implicit permissions" default:"false"`
}

var (
	rootCmd = &cobra.Command{
		Use:   "hafiz",
		Short: "Hafiz S3-compatible object storage",
	}
	runCmd = &cobra.Command{
		Use:         "run",
		Short:       "Run the maintenance daemon",
		RunE:        cmdRun,
		Annotations: map[string]string{"type": "run"},
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create the config file, the metabase and the root credential",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Abort multipart uploads older than the configured TTL, once",
		RunE:  cmdSweep,
	}

	credentialsCmd = &cobra.Command{
		Use:   "credentials",
		Short: "Manage access credentials",
	}
	credentialsCreateCmd = &cobra.Command{
		Use:   "create [account]",
		Short: "Create a credential, for the owner account unless one is given",
		RunE:  cmdCredentialsCreate,
		Args:  cobra.MaximumNArgs(1),
	}
	credentialsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List credentials, secrets are never displayed",
		RunE:  cmdCredentialsList,
		Args:  cobra.NoArgs,
	}
	credentialsRevokeCmd = &cobra.Command{
		Use:   "revoke <access-key-id>",
		Short: "Permanently disable a credential",
		RunE:  cmdCredentialsRevoke,
		Args:  cobra.ExactArgs(1),
	}

	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Manage bucket policies",
	}
	policySetCmd = &cobra.Command{
		Use:   "set <bucket> <policy-file>",
		Short: "Install a policy document from a JSON file",
		RunE:  cmdPolicySet,
		Args:  cobra.ExactArgs(2),
	}
	policyGetCmd = &cobra.Command{
		Use:   "get <bucket>",
		Short: "Print the bucket's policy document",
		RunE:  cmdPolicyGet,
		Args:  cobra.ExactArgs(1),
	}
	policyDeleteCmd = &cobra.Command{
		Use:   "delete <bucket>",
		Short: "Remove the bucket's policy document",
		RunE:  cmdPolicyDelete,
		Args:  cobra.ExactArgs(1),
	}

	runCfg               Flags
	setupCfg             Flags
	credentialsCreateCfg credentialsCreateFlags

	confDir string
)

func init() {
	cfgstruct.SetupFlag(zap.L(), rootCmd, &confDir, "config-dir", defaultConfigDir(), "main directory for hafiz configuration")
	defaults := cfgstruct.DefaultsFlag(rootCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(policyCmd)
	credentialsCmd.AddCommand(credentialsCreateCmd)
	credentialsCmd.AddCommand(credentialsListCmd)
	credentialsCmd.AddCommand(credentialsRevokeCmd)
	policyCmd.AddCommand(policySetCmd)
	policyCmd.AddCommand(policyGetCmd)
	policyCmd.AddCommand(policyDeleteCmd)

	cfgstruct.Bind(runCmd.Flags(), &runCfg, defaults, cfgstruct.ConfDir(confDir))
	cfgstruct.BindSetup(setupCmd.Flags(), &setupCfg, defaults, cfgstruct.ConfDir(confDir))
	cfgstruct.Bind(sweepCmd.Flags(), &runCfg, defaults, cfgstruct.ConfDir(confDir))
	cfgstruct.Bind(credentialsCreateCmd.Flags(), &credentialsCreateCfg, defaults, cfgstruct.ConfDir(confDir))
	cfgstruct.Bind(credentialsListCmd.Flags(), &runCfg, defaults, cfgstruct.ConfDir(confDir))
	cfgstruct.Bind(credentialsRevokeCmd.Flags(), &runCfg, defaults, cfgstruct.ConfDir(confDir))
	cfgstruct.Bind(policySetCmd.Flags(), &runCfg, defaults, cfgstruct.ConfDir(confDir))
	cfgstruct.Bind(policyGetCmd.Flags(), &runCfg, defaults, cfgstruct.ConfDir(confDir))
	cfgstruct.Bind(policyDeleteCmd.Flags(), &runCfg, defaults, cfgstruct.ConfDir(confDir))
}

func defaultConfigDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".hafiz"
	}
	return filepath.Join(home, ".hafiz")
}

// openDB opens the blob store and the metabase named by the configuration.
func openDB(ctx context.Context, log *zap.Logger, cfg Flags) (*metabase.DB, error) {
	blobs, err := filestore.NewAt(log.Named("blobs"), cfg.BlobsDir)
	if err != nil {
		return nil, err
	}
	return metabase.Open(ctx, log.Named("metabase"), cfg.Database, blobs, cfg.Metabase)
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)
	log := zap.L()

	db, err := openDB(ctx, log, runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	creds, err := db.ListCredentials(ctx)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		log.Warn("no credentials registered, clients cannot authenticate until some are created")
	}
	log.Info("metabase opened",
		zap.String("database", runCfg.Database),
		zap.Int("credentials", len(creds)))

	sweeper := gateway.NewSweeper(log.Named("sweeper"), db, runCfg.Sweeper)
	return sweeper.Run(ctx)
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)

	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return errs.Wrap(err)
	}
	if err := os.MkdirAll(setupDir, 0700); err != nil {
		return errs.Wrap(err)
	}

	configPath := filepath.Join(setupDir, process.DefaultCfgFilename)
	if _, err := os.Stat(configPath); err == nil {
		return errs.New("configuration already exists (%v)", configPath)
	}

	db, err := openDB(ctx, zap.L(), setupCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	cred, err := auth.GenerateCredential(setupCfg.Owner, true)
	if err != nil {
		return err
	}
	if err := db.PutCredential(ctx, cred); err != nil {
		return err
	}

	if err := process.SaveConfig(cmd, configPath, nil); err != nil {
		return err
	}

	fmt.Println("Configuration written to", configPath)
	fmt.Println("Root credential created. The secret is shown only once:")
	fmt.Println("  Access Key ID:    ", cred.AccessKeyID)
	fmt.Println("  Secret Access Key:", cred.SecretAccessKey)
	return nil
}

func cmdSweep(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)
	log := zap.L()

	db, err := openDB(ctx, log, runCfg)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	return gateway.NewSweeper(log.Named("sweeper"), db, runCfg.Sweeper).Sweep(ctx)
}

func main() {
	process.Exec(rootCmd)
}

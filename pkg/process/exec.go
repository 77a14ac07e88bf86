// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package process wires a cobra command tree into a configured process:
// flags merge with the HAFIZ_* environment and the config file, a zap
// logger replaces the globals, and commands get a context cancelled on
// SIGINT or SIGTERM.
package process

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	// Error is the class for process setup failures.
	Error = errs.Class("process")

	mon = monkit.Package()

	contextMtx sync.Mutex
	contexts   = map[*cobra.Command]context.Context{}
)

// DefaultCfgFilename is the name of the config file inside the config
// directory.
const DefaultCfgFilename = "config.yaml"

// Ctx returns the context Exec installed for cmd. Commands run outside
// Exec get a plain background context.
func Ctx(cmd *cobra.Command) context.Context {
	contextMtx.Lock()
	defer contextMtx.Unlock()
	if ctx, ok := contexts[cmd]; ok {
		return ctx
	}
	return context.Background()
}

// Exec runs the command tree. Flags registered on the standard library
// flag set, like the log.* and debug.* flags, become persistent flags of
// the root command first.
func Exec(cmd *cobra.Command) {
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	cleanup(cmd)
	silenceUsage(cmd)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func silenceUsage(cmd *cobra.Command) {
	cmd.SilenceUsage = true
	for _, ccmd := range cmd.Commands() {
		silenceUsage(ccmd)
	}
}

// cleanup wraps every RunE in the tree with configuration loading, logger
// setup and signal handling.
func cleanup(cmd *cobra.Command) {
	for _, ccmd := range cmd.Commands() {
		cleanup(ccmd)
	}
	if cmd.RunE == nil {
		return
	}
	internalRun := cmd.RunE

	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		ctx := context.Background()
		defer mon.TaskNamed("root")(&ctx)(&err)

		vip, err := Viper(cmd)
		if err != nil {
			return err
		}

		// Apply file and environment values to the flags the command line
		// left untouched, so explicit flags always win.
		var brokenKeys []string
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed || !vip.IsSet(f.Name) {
				return
			}
			value := vip.GetString(f.Name)
			if value == f.Value.String() {
				return
			}
			if err := cmd.Flags().Set(f.Name, value); err != nil {
				brokenKeys = append(brokenKeys, f.Name)
			}
		})

		logger, err := NewLogger()
		if err != nil {
			return Error.Wrap(err)
		}
		defer func() { _ = logger.Sync() }()
		zap.ReplaceGlobals(logger)

		for _, key := range brokenKeys {
			logger.Warn("invalid configuration value", zap.String("key", key))
		}
		for _, key := range unknownConfigKeys(cmd) {
			logger.Warn("unknown configuration key", zap.String("key", key))
		}

		if cmd.Annotations["type"] == "run" {
			if err := initDebug(logger, monkit.Default); err != nil {
				logger.Error("failed to start debug endpoints", zap.Error(err))
			}
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(c)
		go func() {
			select {
			case <-c:
				cancel()
			case <-ctx.Done():
			}
		}()

		contextMtx.Lock()
		contexts[cmd] = ctx
		contextMtx.Unlock()
		defer func() {
			contextMtx.Lock()
			delete(contexts, cmd)
			contextMtx.Unlock()
		}()

		err = internalRun(cmd, args)
		if err != nil && errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// Viper returns a viper instance bound to the command flags, the HAFIZ_*
// environment and the config file under --config-dir, when one exists.
func Viper(cmd *cobra.Command) (*viper.Viper, error) {
	vip := viper.New()
	if err := vip.BindPFlags(cmd.Flags()); err != nil {
		return nil, Error.Wrap(err)
	}
	vip.SetEnvPrefix("hafiz")
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vip.AutomaticEnv()

	if path := configFilePath(cmd); path != "" && fileExists(path) {
		vip.SetConfigFile(path)
		if err := vip.ReadInConfig(); err != nil {
			return nil, Error.Wrap(err)
		}
	}
	return vip, nil
}

func configFilePath(cmd *cobra.Command) string {
	cfgFlag := cmd.Flags().Lookup("config-dir")
	if cfgFlag == nil || cfgFlag.Value.String() == "" {
		return ""
	}
	return filepath.Join(os.ExpandEnv(cfgFlag.Value.String()), DefaultCfgFilename)
}

// unknownConfigKeys reports config file keys that match no flag, the
// usual sign of a typo in config.yaml.
func unknownConfigKeys(cmd *cobra.Command) []string {
	path := configFilePath(cmd)
	if path == "" || !fileExists(path) {
		return nil
	}
	vip := viper.New()
	vip.SetConfigFile(path)
	if err := vip.ReadInConfig(); err != nil {
		return nil
	}
	var unknown []string
	for _, key := range vip.AllKeys() {
		if cmd.Flags().Lookup(key) == nil {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

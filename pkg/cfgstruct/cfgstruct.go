// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

// Package cfgstruct binds configuration structs to flags using field tags.
//
// Every exported leaf field of a bound struct becomes a flag named after
// the field path, lowercased and hyphenated, with nesting joined by dots
// (Sweeper.TTL becomes sweeper.ttl). Tags control the binding:
//
//	help           flag usage text
//	default        default value, parsed per the field type
//	devDefault     overrides default when --defaults=dev
//	testDefault    overrides default when --defaults=test
//	releaseDefault overrides default when --defaults=release
//	hidden         "true" hides the flag from usage and config files
//	user           "true" writes the value uncommented at setup time
//	setup          "true" binds the field only in setup mode
//	internal       "true" skips the field entirely
//
// String defaults may reference $CONFDIR, expanded from the ConfDir option.
package cfgstruct

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// BindOpt is an option for the Bind function.
type BindOpt struct {
	isDev   *bool
	isTest  *bool
	isSetup *bool
	varfn   func(vars map[string]string)
}

// ConfDir sets the value that $CONFDIR expands to in string defaults.
func ConfDir(path string) BindOpt {
	val := filepath.Clean(os.ExpandEnv(path))
	return BindOpt{varfn: func(vars map[string]string) {
		vars["CONFDIR"] = val
	}}
}

// SetupMode includes fields tagged setup:"true" in the binding.
func SetupMode() BindOpt {
	setup := true
	return BindOpt{isSetup: &setup}
}

// UseDevDefaults forces the dev default set regardless of --defaults.
func UseDevDefaults() BindOpt {
	dev := true
	return BindOpt{isDev: &dev}
}

// UseReleaseDefaults forces the release default set regardless of --defaults.
func UseReleaseDefaults() BindOpt {
	dev := false
	return BindOpt{isDev: &dev}
}

// UseTestDefaults forces the test default set regardless of --defaults.
func UseTestDefaults() BindOpt {
	test := true
	return BindOpt{isTest: &test}
}

// DefaultsType reports which default set the process runs with. It reads
// os.Args directly because Bind runs during init, before any flag parsing.
func DefaultsType() string {
	if param := strings.ToLower(findFlagEarly("defaults")); param != "" {
		return param
	}
	return "release"
}

// DefaultsFlag registers the --defaults flag on cmd and returns the matching
// BindOpt for the value already present on the command line.
func DefaultsFlag(cmd *cobra.Command) BindOpt {
	defaultType := DefaultsType()
	cmd.PersistentFlags().String("defaults", defaultType,
		"determines which set of configuration defaults to use. can be 'dev', 'test' or 'release'")

	switch defaultType {
	case "dev":
		return UseDevDefaults()
	case "test":
		return UseTestDefaults()
	default:
		return UseReleaseDefaults()
	}
}

// SetupFlag registers a persistent string flag whose value other init-time
// code needs, and fills dest from os.Args immediately since flag parsing
// has not happened yet.
func SetupFlag(log *zap.Logger, cmd *cobra.Command, dest *string, name, value, usage string) {
	cmd.PersistentFlags().StringVar(dest, name, value, usage)
	if err := cmd.PersistentFlags().SetAnnotation(name, "setup", []string{"true"}); err != nil {
		log.Error("failed to set annotation", zap.String("flag", name), zap.Error(err))
	}
	if param := findFlagEarly(name); param != "" {
		if err := cmd.PersistentFlags().Set(name, param); err != nil {
			log.Error("failed to set flag", zap.String("flag", name), zap.Error(err))
		}
	}
}

func findFlagEarly(name string) string {
	for i, arg := range os.Args {
		if strings.HasPrefix(arg, "--"+name+"=") {
			return strings.TrimPrefix(arg, "--"+name+"=")
		}
		if arg == "--"+name && i < len(os.Args)-1 {
			return os.Args[i+1]
		}
	}
	return ""
}

// Bind registers a flag for every bindable field of the struct config
// points to, and sets each field to its resolved default right away.
func Bind(flags *pflag.FlagSet, config interface{}, opts ...BindOpt) {
	ptr := reflect.ValueOf(config)
	if ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("invalid config type: %#v, expected pointer to struct", config))
	}

	var env bindEnv
	vars := map[string]string{}
	for _, opt := range opts {
		if opt.isDev != nil {
			env.dev = *opt.isDev
		}
		if opt.isTest != nil {
			env.test = *opt.isTest
		}
		if opt.isSetup != nil {
			env.setup = *opt.isSetup
		}
		if opt.varfn != nil {
			opt.varfn(vars)
		}
	}

	bindConfig(flags, "", ptr.Elem(), vars, env)
}

// BindSetup is Bind with fields tagged setup:"true" included.
func BindSetup(flags *pflag.FlagSet, config interface{}, opts ...BindOpt) {
	Bind(flags, config, append([]BindOpt{SetupMode()}, opts...)...)
}

type bindEnv struct {
	dev   bool
	test  bool
	setup bool
}

func bindConfig(flags *pflag.FlagSet, prefix string, val reflect.Value, vars map[string]string, env bindEnv) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.PkgPath != "" {
			continue
		}
		if field.Tag.Get("internal") == "true" {
			continue
		}
		setupOnly := field.Tag.Get("setup") == "true"
		if setupOnly && !env.setup {
			continue
		}

		fieldval := val.Field(i)
		flagname := prefix + hyphenate(field.Name)

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if field.Anonymous {
				bindConfig(flags, prefix, fieldval, vars, env)
			} else {
				bindConfig(flags, flagname+".", fieldval, vars, env)
			}
			continue
		}

		help := field.Tag.Get("help")
		def := resolveDefault(field.Tag, env)
		bindField(flags, flagname, fieldval, def, help, vars)

		if field.Tag.Get("hidden") == "true" {
			if err := flags.MarkHidden(flagname); err != nil {
				panic(fmt.Sprintf("mark hidden failed for %s: %v", flagname, err))
			}
		}
		if field.Tag.Get("user") == "true" {
			setBoolAnnotation(flags, flagname, "user")
		}
		if setupOnly {
			setBoolAnnotation(flags, flagname, "setup")
		}
	}
}

func resolveDefault(tag reflect.StructTag, env bindEnv) string {
	def := tag.Get("default")
	switch {
	case env.test:
		if v, ok := tag.Lookup("testDefault"); ok {
			return v
		}
		fallthrough
	case env.dev:
		if v, ok := tag.Lookup("devDefault"); ok {
			return v
		}
	default:
		if v, ok := tag.Lookup("releaseDefault"); ok {
			return v
		}
	}
	return def
}

func bindField(flags *pflag.FlagSet, flagname string, fieldval reflect.Value, def, help string, vars map[string]string) {
	addr := fieldval.Addr().Interface()

	if d, ok := addr.(*time.Duration); ok {
		flags.DurationVar(d, flagname, parseDuration(flagname, def), help)
		return
	}

	switch fieldval.Kind() {
	case reflect.String:
		flags.StringVar(addr.(*string), flagname, expand(vars, def), help)
	case reflect.Bool:
		flags.BoolVar(addr.(*bool), flagname, def == "true", help)
	case reflect.Int:
		flags.IntVar(addr.(*int), flagname, int(parseInt(flagname, def)), help)
	case reflect.Int64:
		flags.Int64Var(addr.(*int64), flagname, parseInt(flagname, def), help)
	case reflect.Uint:
		flags.UintVar(addr.(*uint), flagname, uint(parseUint(flagname, def)), help)
	case reflect.Uint64:
		flags.Uint64Var(addr.(*uint64), flagname, parseUint(flagname, def), help)
	case reflect.Float64:
		flags.Float64Var(addr.(*float64), flagname, parseFloat(flagname, def), help)
	default:
		if value, ok := addr.(pflag.Value); ok {
			if def != "" {
				if err := value.Set(expand(vars, def)); err != nil {
					panic(fmt.Sprintf("invalid default for %s: %q: %v", flagname, def, err))
				}
			}
			flags.Var(value, flagname, help)
			return
		}
		panic(fmt.Sprintf("invalid field type for %s: %s", flagname, fieldval.Type()))
	}
}

func setBoolAnnotation(flags *pflag.FlagSet, flagname, key string) {
	if err := flags.SetAnnotation(flagname, key, []string{"true"}); err != nil {
		panic(fmt.Sprintf("set annotation %q failed for %s: %v", key, flagname, err))
	}
}

func parseDuration(flagname, def string) time.Duration {
	if def == "" {
		return 0
	}
	d, err := time.ParseDuration(def)
	if err != nil {
		panic(fmt.Sprintf("invalid default for %s: %q: %v", flagname, def, err))
	}
	return d
}

func parseInt(flagname, def string) int64 {
	if def == "" {
		return 0
	}
	n, err := strconv.ParseInt(def, 0, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid default for %s: %q: %v", flagname, def, err))
	}
	return n
}

func parseUint(flagname, def string) uint64 {
	if def == "" {
		return 0
	}
	n, err := strconv.ParseUint(def, 0, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid default for %s: %q: %v", flagname, def, err))
	}
	return n
}

func parseFloat(flagname, def string) float64 {
	if def == "" {
		return 0
	}
	f, err := strconv.ParseFloat(def, 64)
	if err != nil {
		panic(fmt.Sprintf("invalid default for %s: %q: %v", flagname, def, err))
	}
	return f
}

func expand(vars map[string]string, val string) string {
	return os.Expand(val, func(key string) string { return vars[key] })
}

// hyphenate splits a Go field name at case boundaries and joins the pieces
// with dashes: MinPartSize becomes min-part-size, TTL stays ttl.
func hyphenate(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

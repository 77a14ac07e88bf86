// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package process

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zeebo/errs"
	yaml "gopkg.in/yaml.v2"
)

// SaveConfig writes the command's flags to outfile as yaml, one entry per
// flag with its help text above it. Defaults the user never touched are
// written commented out, so the file documents every knob while only
// pinning the values that were chosen; flags marked user:"true", changed
// on the command line, or present in overrides are written live. Hidden
// and setup-only flags stay out of the file.
func SaveConfig(cmd *cobra.Command, outfile string, overrides map[string]interface{}) error {
	flags := cmd.Flags()

	var buf bytes.Buffer
	var failed []string
	written := map[string]bool{}

	flags.VisitAll(func(f *pflag.Flag) {
		switch f.Name {
		case "config-dir", "defaults", "help":
			return
		}
		if f.Hidden || readBoolAnnotation(f, "setup") {
			return
		}

		value, overridden := overrides[f.Name]
		if !overridden {
			value = typedValue(f)
		}

		line, err := yaml.Marshal(map[string]interface{}{f.Name: value})
		if err != nil {
			failed = append(failed, f.Name)
			return
		}
		written[f.Name] = true

		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		if f.Usage != "" {
			fmt.Fprintf(&buf, "# %s\n", f.Usage)
		}
		if !overridden && !f.Changed && !readBoolAnnotation(f, "user") {
			buf.WriteString("# ")
		}
		buf.Write(line)
	})

	if len(failed) > 0 {
		return Error.New("cannot encode values for %v", failed)
	}

	// overrides without a matching flag still land in the file
	var extra []string
	for key := range overrides {
		if !written[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		line, err := yaml.Marshal(map[string]interface{}{key: overrides[key]})
		if err != nil {
			return Error.Wrap(err)
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(line)
	}

	return atomicWrite(outfile, 0600, buf.Bytes())
}

func readBoolAnnotation(flag *pflag.Flag, key string) bool {
	annotation := flag.Annotations[key]
	return len(annotation) > 0 && annotation[0] == "true"
}

// typedValue converts the flag's string form back to a yaml-friendly type
// so booleans and numbers are not quoted in the file.
func typedValue(f *pflag.Flag) interface{} {
	text := f.Value.String()
	switch f.Value.Type() {
	case "bool":
		if v, err := strconv.ParseBool(text); err == nil {
			return v
		}
	case "int", "int8", "int16", "int32", "int64", "count":
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return v
		}
	case "uint", "uint8", "uint16", "uint32", "uint64":
		if v, err := strconv.ParseUint(text, 10, 64); err == nil {
			return v
		}
	case "float32", "float64":
		if v, err := strconv.ParseFloat(text, 64); err == nil {
			return v
		}
	}
	return text
}

// atomicWrite writes data to outfile through a temp file and rename, so a
// crash mid-write never leaves a truncated config behind.
func atomicWrite(outfile string, mode os.FileMode, data []byte) (err error) {
	fh, err := os.CreateTemp(filepath.Dir(outfile), filepath.Base(outfile))
	if err != nil {
		return Error.Wrap(err)
	}
	needsClose, needsRemove := true, true
	defer func() {
		if needsClose {
			err = errs.Combine(err, fh.Close())
		}
		if needsRemove {
			err = errs.Combine(err, os.Remove(fh.Name()))
		}
	}()

	if _, err := fh.Write(data); err != nil {
		return Error.Wrap(err)
	}
	if err := fh.Sync(); err != nil {
		return Error.Wrap(err)
	}

	needsClose = false
	if err := fh.Close(); err != nil {
		return Error.Wrap(err)
	}
	if err := os.Chmod(fh.Name(), mode); err != nil {
		return Error.Wrap(err)
	}
	if err := os.Rename(fh.Name(), outfile); err != nil {
		return Error.Wrap(err)
	}

	needsRemove = false
	return nil
}

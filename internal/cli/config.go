// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - "streamchat config" command.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//   show (default)      Display the effective configuration
//   path                Show the configuration file path
//   init                Write a default config file if none exists
//   get <key>           Print one value
//   set <key> <value>   Set one value and save
//   keys                List settable keys
//   reset               Overwrite the file with defaults
//
// Examples:
//   streamchat config set backend.frame_mode tagged
//   streamchat config set mock.enabled false
//   streamchat config get backend.url
//   streamchat --config ./dev.yaml config show
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jeranaias/streamchat/internal/config"
)

// HandleConfigCommand runs "streamchat config".
func HandleConfigCommand(args Args) error {
	return runConfig(args, os.Stdout)
}

func runConfig(args Args, out io.Writer) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(args, out)
	case "path":
		path, err := configFilePath(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	case "init":
		return configInit(args, out)
	case "get":
		return configGet(args, out)
	case "set":
		return configSet(args, out)
	case "keys":
		for _, k := range config.Keys() {
			fmt.Fprintln(out, k)
		}
		return nil
	case "reset":
		return configWrite(args, out, config.Default(), "reset")
	default:
		return NewValidationError("config subcommand", args.Subcommand, "expected show, path, init, get, set, keys or reset")
	}
}

// configFilePath is --config when given, else the default lookup.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	path, err := config.ConfigPath()
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	return path, nil
}

// configShow prints the effective configuration grouped by section.
func configShow(args Args, out io.Writer) error {
	cfg, path, err := LoadConfig(args)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, TitleStyle.Render("streamchat configuration"))
	fmt.Fprintln(out, RenderSeparator(41))

	section := ""
	for _, key := range config.Keys() {
		if key == "version" {
			continue
		}
		dot := strings.LastIndexByte(key, '.')
		if sec := key[:dot]; sec != section {
			section = sec
			fmt.Fprintln(out)
			fmt.Fprintln(out, "["+section+"]")
		}
		v, _ := cfg.Get(key)
		fmt.Fprintf(out, "  %-32s %v\n", key[dot+1:]+":", v)
	}

	if len(cfg.Backend.Headers) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "[backend.headers]")
		names := make([]string, 0, len(cfg.Backend.Headers))
		for name := range cfg.Backend.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "  %-32s %s\n", name+":", DimStyle.Render("[REDACTED]"))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, RenderSeparator(41))
	fmt.Fprintf(out, "Config file: %s\n", path)
	return nil
}

func configInit(args Args, out io.Writer) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "Config already exists: %s\n", path)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return &ConfigError{Path: path, Err: err}
	}
	return configWrite(args, out, config.Default(), "init")
}

func configGet(args Args, out io.Writer) error {
	if args.ConfigKey == "" {
		return NewValidationError("key", "", "usage: streamchat config get KEY")
	}
	cfg, _, err := LoadConfig(args)
	if err != nil {
		return err
	}
	v, err := cfg.Get(args.ConfigKey)
	if err != nil {
		return NewValidationError("key", args.ConfigKey, err.Error())
	}
	fmt.Fprintln(out, v)
	return nil
}

// configSet edits the file itself, so environment overrides and
// command-line flags never end up saved.
func configSet(args Args, out io.Writer) error {
	if args.ConfigKey == "" || args.ConfigVal == "" {
		return NewValidationError("arguments", "", "usage: streamchat config set KEY VALUE")
	}
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadForEdit(path)
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return NewValidationError(args.ConfigKey, args.ConfigVal, err.Error())
	}
	return configWrite(args, out, cfg, "set")
}

func configWrite(args Args, out io.Writer, cfg *config.Config, action string) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := config.SaveTo(cfg, path); err != nil {
		return NewCommandError("config", action, "could not save", err)
	}
	fmt.Fprintf(out, "%s %s\n", SuccessStyle.Render("Saved"), path)
	return nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for streamchat.
//
// TOML is the primary format; JSON and YAML files are read when the path
// ends in .json, .yaml or .yml.
//
// # Configuration Precedence
//
//   - Environment variables (STREAMCHAT_*)
//   - $STREAMCHAT_CONFIG, or ~/.streamchat/config.{toml,json,yaml}
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	mode := cfg.Backend.FrameMode
//
// Watch for edits while running:
//
//	w, err := config.NewWatcher(path, 0, apply, logger)
//	w.Start(ctx)
//	defer w.Close()
package config

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the t3lepathy configuration file.
//
// The file holds process settings: where data lives, how streamed replies
// are batched, provider client limits, the local API listener, logging and
// terminal display. Preferences the user changes while chatting (models, API
// keys, reply length, system prompt) are kept in the settings store instead.
//
// # Key Types
//
//   - Config: the whole file, one struct per TOML section
//   - ValidateErrors: every invalid field found by Validate
//
// # Configuration Precedence
//
// Highest first:
//   - Environment variables (T3_*, optionally from a .env file)
//   - ~/.t3lepathy/config.toml
//   - Built-in defaults
//
// OPENAI_API_KEY, GOOGLE_API_KEY and ANTHROPIC_API_KEY are read by
// EnvAPIKeys and seed the settings store for providers without a key.
//
// # Usage
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	gw := gateway.NewRouter(cfg.GatewayOptions())
package config

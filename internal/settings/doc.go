// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings holds the user's chat preferences.
//
// Each setting is a JSON value under a fixed key in a KV port: the
// storage settings table in the app, MemoryKV in tests. Missing or
// unreadable values fall back to their defaults. Setters validate and
// write through immediately.
//
// # Key Types
//
//   - Service: Typed getters and setters over a KV port
//   - Settings: Snapshot of every setting
//   - MemoryKV: In-memory KV for tests
//
// # Usage
//
//	svc := settings.New(store, logger)
//	if err := svc.Load(ctx); err != nil {
//	    return err
//	}
//	err := svc.SetCurrentModel(ctx, "gpt-4o")
//	key, ok := svc.APIKey(model.ProviderOpenAI)
package settings

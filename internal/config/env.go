// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// EnvPrefix prefixes every configuration override, e.g. T3_LOG_LEVEL.
const EnvPrefix = "T3_"

// =============================================================================
// ENVIRONMENT
// =============================================================================

// LoadDotEnv loads variables from the given .env files (".env" when none)
// without overriding variables already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnvOverrides overrides fields from T3_* environment variables.
// Unset variables leave the field alone.
func (c *Config) ApplyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

type envKeys struct {
	OpenAI    string `env:"OPENAI_API_KEY"`
	Google    string `env:"GOOGLE_API_KEY"`
	Anthropic string `env:"ANTHROPIC_API_KEY"`
}

// EnvAPIKeys returns the provider keys found in the environment. The
// settings service stores them for providers it has no key for.
func EnvAPIKeys() (model.APIKeys, error) {
	var k envKeys
	if err := env.Parse(&k); err != nil {
		return nil, fmt.Errorf("failed to read api keys from environment: %w", err)
	}
	keys := model.APIKeys{}
	for p, v := range map[model.Provider]string{
		model.ProviderOpenAI:    k.OpenAI,
		model.ProviderGoogle:    k.Google,
		model.ProviderAnthropic: k.Anthropic,
	} {
		if v != "" {
			keys[p] = v
		}
	}
	return keys, nil
}

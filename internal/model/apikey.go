// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAPIKey is returned when a key does not look like one the
// provider issues.
var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeys maps each provider to its credential.
type APIKeys map[Provider]string

// Get returns the key for p and whether it is set.
func (k APIKeys) Get(p Provider) (string, bool) {
	key, ok := k[p]
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// Clone returns an independent copy.
func (k APIKeys) Clone() APIKeys {
	out := make(APIKeys, len(k))
	for p, key := range k {
		out[p] = key
	}
	return out
}

// ValidateAPIKey checks the shape of a provider key. An empty key is valid
// and means "not configured".
func ValidateAPIKey(p Provider, key string) error {
	if key == "" {
		return nil
	}
	var ok bool
	switch p {
	case ProviderOpenAI:
		ok = strings.HasPrefix(key, "sk-")
	case ProviderGoogle:
		ok = strings.HasPrefix(key, "AIza") && len(key) == 39
	case ProviderAnthropic:
		ok = strings.HasPrefix(key, "sk-") && len(key) == 51
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidAPIKey, p)
	}
	if !ok {
		return fmt.Errorf("%w for %s", ErrInvalidAPIKey, p)
	}
	return nil
}

// MaskAPIKey hides all but a short prefix of a key for display.
func MaskAPIKey(key string) string {
	if key == "" {
		return "[not set]"
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", 8) + fmt.Sprintf(" (%d chars)", len(key))
}

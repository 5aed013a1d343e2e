// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/storage"
)

// Keys under which settings are stored.
const (
	KeyResponseLength = "responseLength"
	KeyCurrentModel   = "currentModel"
	KeyTitleModel     = "titleModel"
	KeyAPIKeys        = "apiKeys"
	KeySystemPrompt   = "systemPrompt"
)

// DefaultSystemPrompt is the system prompt until the user sets one.
const DefaultSystemPrompt = "You are a friendly assistant!"

// KV is the persistence port. Get returns storage.ErrNotFound for a
// missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Settings is a snapshot of every setting.
type Settings struct {
	ResponseLength model.ResponseLength `json:"responseLength"`
	CurrentModel   string               `json:"currentModel"`
	TitleModel     string               `json:"titleModel"`
	APIKeys        model.APIKeys        `json:"apiKeys"`
	SystemPrompt   string               `json:"systemPrompt"`
}

// Defaults returns the settings of a fresh install.
func Defaults() Settings {
	return Settings{
		ResponseLength: model.LengthMedium,
		CurrentModel:   model.DefaultModelName,
		TitleModel:     model.DefaultModelName,
		APIKeys:        model.APIKeys{},
		SystemPrompt:   DefaultSystemPrompt,
	}
}

// =============================================================================
// SERVICE
// =============================================================================

// Service reads and writes settings. It is safe for concurrent use.
type Service struct {
	mu     sync.RWMutex
	kv     KV
	cur    Settings
	logger *slog.Logger
}

// New creates a service holding the defaults. Call Load to read stored values.
func New(kv KV, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{kv: kv, cur: Defaults(), logger: logger}
}

// Load reads every setting from the KV. Missing keys keep their default;
// values that fail to decode or validate are logged and replaced by the
// default.
func (s *Service) Load(ctx context.Context) error {
	next := Defaults()

	var length string
	if ok, err := s.read(ctx, KeyResponseLength, &length); err != nil {
		return err
	} else if ok {
		if r, err := model.ParseResponseLength(length); err == nil {
			next.ResponseLength = r
		} else {
			s.logger.Warn("ignoring stored response length", "value", length)
		}
	}

	for _, key := range []string{KeyCurrentModel, KeyTitleModel} {
		var name string
		ok, err := s.read(ctx, key, &name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, found := model.Lookup(name); !found {
			s.logger.Warn("ignoring unknown stored model", "key", key, "model", name)
			continue
		}
		if key == KeyCurrentModel {
			next.CurrentModel = name
		} else {
			next.TitleModel = name
		}
	}

	keys := model.APIKeys{}
	if _, err := s.read(ctx, KeyAPIKeys, &keys); err != nil {
		return err
	}
	for p, k := range keys {
		if k != "" {
			next.APIKeys[p] = k
		}
	}

	var prompt string
	if ok, err := s.read(ctx, KeySystemPrompt, &prompt); err != nil {
		return err
	} else if ok && strings.TrimSpace(prompt) != "" {
		next.SystemPrompt = prompt
	}

	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return nil
}

// read decodes key into v. ok is false when the key is missing or holds
// undecodable data.
func (s *Service) read(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("ignoring undecodable setting", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *Service) write(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// GETTERS
// =============================================================================

// Get returns a copy of every setting.
func (s *Service) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.cur
	out.APIKeys = s.cur.APIKeys.Clone()
	return out
}

// ResponseLength returns the reply length preference.
func (s *Service) ResponseLength() model.ResponseLength {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.ResponseLength
}

// CurrentModel returns the model used for replies.
func (s *Service) CurrentModel() model.Model {
	s.mu.RLock()
	name := s.cur.CurrentModel
	s.mu.RUnlock()
	m, _ := model.Lookup(name)
	return m
}

// TitleModel returns the model used to name chats.
func (s *Service) TitleModel() model.Model {
	s.mu.RLock()
	name := s.cur.TitleModel
	s.mu.RUnlock()
	m, _ := model.Lookup(name)
	return m
}

// APIKey returns the key of provider p.
func (s *Service) APIKey(p model.Provider) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.APIKeys.Get(p)
}

// ConfiguredProviders lists providers with a key, in display order.
func (s *Service) ConfiguredProviders() []model.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Provider
	for _, p := range model.Providers {
		if _, ok := s.cur.APIKeys.Get(p); ok {
			out = append(out, p)
		}
	}
	return out
}

// SystemPrompt returns the base system prompt.
func (s *Service) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.SystemPrompt
}

// =============================================================================
// SETTERS
// =============================================================================

// SetResponseLength stores the reply length preference.
func (s *Service) SetResponseLength(ctx context.Context, r model.ResponseLength) error {
	r, err := model.ParseResponseLength(string(r))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(ctx, KeyResponseLength, r); err != nil {
		return err
	}
	s.cur.ResponseLength = r
	return nil
}

// SetCurrentModel selects the reply model by catalog name.
func (s *Service) SetCurrentModel(ctx context.Context, name string) error {
	if _, ok := model.Lookup(name); !ok {
		return fmt.Errorf("unknown model %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(ctx, KeyCurrentModel, name); err != nil {
		return err
	}
	s.cur.CurrentModel = name
	return nil
}

// SetTitleModel selects the model used to name chats. It must produce text.
func (s *Service) SetTitleModel(ctx context.Context, name string) error {
	m, ok := model.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown model %q", name)
	}
	if !m.Has(model.CapTextOutput) {
		return fmt.Errorf("model %q cannot produce titles", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(ctx, KeyTitleModel, name); err != nil {
		return err
	}
	s.cur.TitleModel = name
	return nil
}

// SetAPIKey stores the key of provider p, replacing any previous one.
// An empty key removes it.
func (s *Service) SetAPIKey(ctx context.Context, p model.Provider, key string) error {
	key = strings.TrimSpace(key)
	if err := model.ValidateAPIKey(p, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cur.APIKeys.Clone()
	if key == "" {
		delete(next, p)
	} else {
		next[p] = key
	}
	if err := s.write(ctx, KeyAPIKeys, next); err != nil {
		return err
	}
	s.cur.APIKeys = next
	return nil
}

// SeedAPIKeys stores keys for providers that have none yet. Keys that fail
// validation are skipped with a warning. It returns the providers seeded.
func (s *Service) SeedAPIKeys(ctx context.Context, keys model.APIKeys) ([]model.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur.APIKeys.Clone()
	var seeded []model.Provider
	for p, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := next.Get(p); ok {
			continue
		}
		if err := model.ValidateAPIKey(p, key); err != nil {
			s.logger.Warn("ignoring environment api key", "provider", p, "error", err)
			continue
		}
		next[p] = key
		seeded = append(seeded, p)
	}
	if len(seeded) == 0 {
		return nil, nil
	}
	sort.Slice(seeded, func(i, j int) bool { return seeded[i] < seeded[j] })
	if err := s.write(ctx, KeyAPIKeys, next); err != nil {
		return nil, err
	}
	s.cur.APIKeys = next
	return seeded, nil
}

// SetSystemPrompt stores the base system prompt. Blank resets the default.
func (s *Service) SetSystemPrompt(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(ctx, KeySystemPrompt, prompt); err != nil {
		return err
	}
	s.cur.SystemPrompt = prompt
	return nil
}

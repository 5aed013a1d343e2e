// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models_cmd.go - the model catalog and provider API keys.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"

	"github.com/aljaroudi/t3lepathy/internal/app"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/settings"
)

// ModelEntry is one model in the --json output of models.
type ModelEntry struct {
	model.Model
	Configured bool `json:"configured"`
	Current    bool `json:"current"`
}

// KeyEntry is one provider in the --json output of keys.
type KeyEntry struct {
	Provider model.Provider `json:"provider"`
	Key      string         `json:"key"` // masked
	Set      bool           `json:"set"`
}

// =============================================================================
// MODELS
// =============================================================================

func (r *Runner) models(a *app.App, args Args) error {
	entries := modelEntries(a.Settings, args.Model)
	if args.JSON {
		return NewJSONResponse("models", entries).Print(r.Out)
	}
	printModels(r.Out, entries)
	return nil
}

// modelEntries lists the catalog with key availability. override, when
// set, is the current model instead of the stored setting.
func modelEntries(svc *settings.Service, override string) []ModelEntry {
	current := svc.CurrentModel().Name
	if override != "" {
		current = override
	}
	configured := svc.ConfiguredProviders()
	return lo.Map(model.Catalog(), func(m model.Model, _ int) ModelEntry {
		return ModelEntry{
			Model:      m,
			Configured: lo.Contains(configured, m.Provider),
			Current:    m.Name == current,
		}
	})
}

func printModels(w io.Writer, entries []ModelEntry) {
	for i, p := range model.Providers {
		group := lo.Filter(entries, func(e ModelEntry, _ int) bool { return e.Provider == p })
		if len(group) == 0 {
			continue
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		status := WarningStyle.Render("no key")
		if group[0].Configured {
			status = SuccessStyle.Render("ready")
		}
		fmt.Fprintf(w, "%s %s\n", SectionStyle.Render(strings.ToUpper(string(p))), status)

		for _, e := range group {
			marker := "  "
			name := fmt.Sprintf("%-28s", e.Name)
			if e.Current {
				marker = HighlightStyle.Render("* ")
				name = HighlightStyle.Render(name)
			}
			fmt.Fprintf(w, "%s%s %s\n", marker, name, DimStyle.Render(e.CapabilitiesString()))
			if e.Description != "" {
				fmt.Fprintf(w, "    %s\n", DimStyle.Render(e.Description))
			}
		}
	}
}

// =============================================================================
// KEYS
// =============================================================================

func (r *Runner) keys(ctx context.Context, a *app.App, args Args) error {
	p := NewArgParser(args.Raw)
	switch p.Subcommand() {
	case "", "list", "show":
		return r.listKeys(a, args)
	case "set":
		return r.setKey(ctx, a, args, p.Positional(1), p.Positional(2))
	default:
		return ErrInvalidValue("keys subcommand", p.Subcommand(), "t3lepathy keys set openai sk-...")
	}
}

func (r *Runner) listKeys(a *app.App, args Args) error {
	keys := a.Settings.Get().APIKeys
	entries := lo.Map(model.Providers, func(p model.Provider, _ int) KeyEntry {
		key, ok := keys.Get(p)
		return KeyEntry{Provider: p, Key: model.MaskAPIKey(key), Set: ok}
	})
	if args.JSON {
		return NewJSONResponse("keys", entries).Print(r.Out)
	}
	for _, e := range entries {
		fmt.Fprintf(r.Out, "%s%s\n", RenderLabel(string(e.Provider)), e.Key)
	}
	return nil
}

func (r *Runner) setKey(ctx context.Context, a *app.App, args Args, providerName, key string) error {
	if providerName == "" || key == "" {
		return ErrMissingArgument("provider and key", "t3lepathy keys set openai sk-...")
	}
	p, err := model.ParseProvider(providerName)
	if err != nil {
		return ErrInvalidValue("provider", providerName, "google, openai or anthropic")
	}
	if err := a.Settings.SetAPIKey(ctx, p, strings.TrimSpace(key)); err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("keys", KeyEntry{Provider: p, Key: model.MaskAPIKey(key), Set: true}).Print(r.Out)
	}
	if !args.Quiet {
		fmt.Fprintf(r.Out, "%s %s key stored\n", SuccessStyle.Render("✓"), p)
	}
	return nil
}

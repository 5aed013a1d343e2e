// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// =============================================================================
// PROVIDERS AND CAPABILITIES
// =============================================================================

// Provider identifies the company serving a model.
type Provider string

const (
	ProviderOpenAI    Provider = "OpenAI"
	ProviderGoogle    Provider = "Google"
	ProviderAnthropic Provider = "Anthropic"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderGoogle, ProviderOpenAI, ProviderAnthropic}

// ParseProvider matches a provider name case-insensitively.
func ParseProvider(s string) (Provider, error) {
	for _, p := range Providers {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Capability is something a model can consume or produce.
type Capability string

const (
	CapTextOutput  Capability = "text-output"
	CapImageOutput Capability = "image-output"
	CapImageInput  Capability = "image-input"
	CapFileInput   Capability = "file-input"
)

// =============================================================================
// MODEL CATALOG
// =============================================================================

// Model is an immutable catalog entry.
type Model struct {
	Provider     Provider     `json:"provider"`
	Name         string       `json:"name"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Capabilities []Capability `json:"capabilities"`
}

// Has reports whether the model has the capability.
func (m Model) Has(c Capability) bool {
	return lo.Contains(m.Capabilities, c)
}

// CapabilitiesString returns a comma-separated capability list for display.
func (m Model) CapabilitiesString() string {
	return strings.Join(lo.Map(m.Capabilities, func(c Capability, _ int) string {
		return string(c)
	}), ", ")
}

// DefaultModelName is the model used when nothing else is configured.
const DefaultModelName = "gemini-2.5-flash-lite"

// ImageModelName is the model used for image generation.
const ImageModelName = "dall-e-3"

var catalog = []Model{
	{
		Provider:     ProviderOpenAI,
		Name:         "gpt-4o-mini",
		Title:        "GPT-4o Mini",
		Description:  "Fast, cheap",
		Capabilities: []Capability{CapTextOutput, CapFileInput},
	},
	{
		Provider:     ProviderOpenAI,
		Name:         "gpt-4o",
		Title:        "GPT-4o",
		Description:  "Text + image input",
		Capabilities: []Capability{CapTextOutput, CapFileInput, CapImageInput},
	},
	{
		Provider:     ProviderOpenAI,
		Name:         ImageModelName,
		Title:        "DALL·E 3",
		Description:  "Image generation only",
		Capabilities: []Capability{CapImageOutput},
	},
	{
		Provider:     ProviderGoogle,
		Name:         "gemini-2.5-flash-lite",
		Title:        "Gemini 2.5 Flash Lite",
		Description:  "Fastest, cheapest",
		Capabilities: []Capability{CapTextOutput, CapFileInput},
	},
	{
		Provider:     ProviderGoogle,
		Name:         "gemini-2.5-flash",
		Title:        "Gemini 2.5 Flash",
		Description:  "Fast, cheap",
		Capabilities: []Capability{CapTextOutput, CapFileInput},
	},
	{
		Provider:     ProviderGoogle,
		Name:         "gemini-2.5-pro",
		Title:        "Gemini 2.5 Pro",
		Description:  "Advanced",
		Capabilities: []Capability{CapTextOutput, CapFileInput},
	},
	{
		Provider:     ProviderAnthropic,
		Name:         "claude-4-sonnet-20250514",
		Title:        "Claude 4 Sonnet",
		Description:  "Smart, balanced Claude",
		Capabilities: []Capability{CapTextOutput, CapFileInput},
	},
}

// Catalog returns a copy of every known model.
func Catalog() []Model {
	return lo.Map(catalog, func(m Model, _ int) Model {
		m.Capabilities = append([]Capability(nil), m.Capabilities...)
		return m
	})
}

// Lookup finds a model by name.
func Lookup(name string) (Model, bool) {
	m, ok := lo.Find(catalog, func(m Model) bool { return m.Name == name })
	if !ok {
		return Model{}, false
	}
	m.Capabilities = append([]Capability(nil), m.Capabilities...)
	return m, true
}

// TextModelFor returns the cheapest text model of a provider. It answers
// classification prompts when the selected model cannot produce text.
func TextModelFor(p Provider) (Model, bool) {
	for _, m := range catalog {
		if m.Provider == p && m.Has(CapTextOutput) {
			return Lookup(m.Name)
		}
	}
	return Model{}, false
}

// =============================================================================
// FILE TYPES
// =============================================================================

var documentExtensions = []string{
	".pdf", ".doc", ".docx", ".txt", ".md", ".rtf", ".csv", ".xls", ".xlsx", ".ppt", ".pptx",
	".json", ".xml", ".html", ".js", ".ts", ".jsx", ".tsx", ".py", ".java", ".c", ".cpp", ".cs",
	".go", ".rb", ".php", ".sh", ".swift", ".rs", ".kt", ".m", ".h", ".sql", ".yml", ".yaml",
	".toml", ".ini", ".bat", ".pl", ".lua", ".r", ".ipynb", ".tex", ".scss", ".sass", ".less", ".css",
}

// AcceptedFileTypes lists the attachment types a model accepts, as file
// extensions plus "image/*" for image input.
func AcceptedFileTypes(m Model) []string {
	var types []string
	if m.Has(CapFileInput) {
		types = append(types, documentExtensions...)
	}
	if m.Has(CapImageInput) {
		types = append(types, "image/*")
	}
	return types
}

// Accepts reports whether a file with the given name and media type can be
// attached when talking to m.
func Accepts(m Model, filename, mediaType string) bool {
	if strings.HasPrefix(mediaType, "image/") {
		return m.Has(CapImageInput)
	}
	if !m.Has(CapFileInput) {
		return false
	}
	lower := strings.ToLower(filename)
	return lo.ContainsBy(documentExtensions, func(ext string) bool {
		return strings.HasSuffix(lower, ext)
	})
}

// =============================================================================
// RESPONSE LENGTH
// =============================================================================

// ResponseLength caps the number of sentences in a reply.
type ResponseLength string

const (
	LengthShort  ResponseLength = "short"
	LengthMedium ResponseLength = "medium"
	LengthOpen   ResponseLength = "open"
)

// MaxSentences returns the sentence cap, or nil for no cap.
func (r ResponseLength) MaxSentences() *int {
	switch r {
	case LengthShort:
		return IntPtr(3)
	case LengthMedium:
		return IntPtr(10)
	default:
		return nil
	}
}

// ParseResponseLength validates a response length name.
func ParseResponseLength(s string) (ResponseLength, error) {
	switch r := ResponseLength(strings.ToLower(strings.TrimSpace(s))); r {
	case LengthShort, LengthMedium, LengthOpen:
		return r, nil
	default:
		return "", fmt.Errorf("unknown response length %q (want short, medium or open)", s)
	}
}

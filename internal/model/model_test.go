// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// =============================================================================
// CONTENT TESTS
// =============================================================================

func TestContent_JSONKeepsPartKinds(t *testing.T) {
	in := Content{
		Text{Text: ""},
		Image{ImageDataURI: "data:image/png;base64,AAAA", MediaType: "image/png"},
		File{DataURI: "data:text/plain;base64,aGk=", MediaType: "text/plain", Filename: "hi.txt"},
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"text":""`) {
		t.Errorf("empty text part should keep its text field, got %s", data)
	}

	var out Content
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d parts, want 3", len(out))
	}
	if _, ok := out[0].(Text); !ok {
		t.Errorf("part 0 = %T, want Text", out[0])
	}
	if img, ok := out[1].(Image); !ok || img.MediaType != "image/png" {
		t.Errorf("part 1 = %#v, want png Image", out[1])
	}
	if f, ok := out[2].(File); !ok || f.Filename != "hi.txt" {
		t.Errorf("part 2 = %#v, want File hi.txt", out[2])
	}
}

func TestContent_UnmarshalRejectsUnknownKind(t *testing.T) {
	var out Content
	err := json.Unmarshal([]byte(`[{"type":"audio"}]`), &out)

	var unknown *UnknownPartError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownPartError", err)
	}
	if unknown.Kind != "audio" {
		t.Errorf("Kind = %q, want audio", unknown.Kind)
	}
}

func TestContent_TextHelpers(t *testing.T) {
	c := Content{Image{}, Text{Text: "first"}, Text{Text: "second"}}

	if !c.HasText() {
		t.Error("HasText() = false, want true")
	}
	if got, _ := c.FirstText(); got != "first" {
		t.Errorf("FirstText() = %q, want first", got)
	}
	if got := c.PlainText(); got != "first\nsecond" {
		t.Errorf("PlainText() = %q", got)
	}
	if (Content{Image{}}).HasText() {
		t.Error("image-only content should not report text")
	}
}

func TestDataURI_RoundTrip(t *testing.T) {
	uri := EncodeDataURI("image/png", []byte{1, 2, 3})
	if uri != "data:image/png;base64,AQID" {
		t.Errorf("EncodeDataURI = %q", uri)
	}

	mt, data, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatalf("DecodeDataURI failed: %v", err)
	}
	if mt != "image/png" || len(data) != 3 {
		t.Errorf("got (%q, %v)", mt, data)
	}

	if _, _, err := DecodeDataURI("http://example.com"); !errors.Is(err, ErrInvalidDataURI) {
		t.Errorf("err = %v, want ErrInvalidDataURI", err)
	}
}

func TestPartFromFile(t *testing.T) {
	if _, ok := PartFromFile("a.png", "image/png", nil).(Image); !ok {
		t.Error("image media type should become an Image part")
	}
	f, ok := PartFromFile("notes.md", "text/markdown", []byte("# hi")).(File)
	if !ok {
		t.Fatal("non-image media type should become a File part")
	}
	if f.Filename != "notes.md" {
		t.Errorf("Filename = %q", f.Filename)
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_CloneIsDeep(t *testing.T) {
	msg := NewUserMessage("chat-1", "gpt-4o", Text{Text: "hello"})
	msg.Tokens = IntPtr(5)

	clone := msg.Clone()
	*clone.Tokens = 99
	*clone.Model = "other"
	clone.Content[0] = Text{Text: "changed"}

	if *msg.Tokens != 5 {
		t.Errorf("original tokens mutated: %d", *msg.Tokens)
	}
	if msg.ModelName() != "gpt-4o" {
		t.Errorf("original model mutated: %q", msg.ModelName())
	}
	if got, _ := msg.Content.FirstText(); got != "hello" {
		t.Errorf("original content mutated: %q", got)
	}
}

func TestNewAssistantPlaceholder(t *testing.T) {
	msg := NewAssistantPlaceholder("chat-1", "gemini-2.5-flash")

	if msg.Role != RoleAssistant {
		t.Errorf("Role = %q", msg.Role)
	}
	if msg.Tokens != nil {
		t.Error("placeholder tokens should be nil")
	}
	if len(msg.Content) != 0 {
		t.Errorf("placeholder content = %v, want empty", msg.Content)
	}
	if msg.ID == "" || msg.ChatID != "chat-1" {
		t.Errorf("bad identity: %+v", msg)
	}
}

func TestMessage_JSONNullsUnknownUsage(t *testing.T) {
	msg := NewAssistantPlaceholder("chat-1", "")
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"tokens":null`) || !strings.Contains(string(data), `"model":null`) {
		t.Errorf("expected null tokens and model, got %s", data)
	}
}

// =============================================================================
// CATALOG TESTS
// =============================================================================

func TestLookup(t *testing.T) {
	m, ok := Lookup("dall-e-3")
	if !ok {
		t.Fatal("dall-e-3 missing from catalog")
	}
	if !m.Has(CapImageOutput) || m.Has(CapTextOutput) {
		t.Errorf("dall-e-3 capabilities = %v", m.Capabilities)
	}

	if _, ok := Lookup("gpt-2"); ok {
		t.Error("unknown model should not be found")
	}

	// Returned entries must not alias the catalog.
	m.Capabilities[0] = CapFileInput
	again, _ := Lookup("dall-e-3")
	if again.Capabilities[0] != CapImageOutput {
		t.Error("Lookup result aliases the catalog")
	}
}

func TestDefaultModelIsInCatalog(t *testing.T) {
	if _, ok := Lookup(DefaultModelName); !ok {
		t.Errorf("default model %q missing from catalog", DefaultModelName)
	}
}

func TestTextModelFor(t *testing.T) {
	for _, p := range Providers {
		m, ok := TextModelFor(p)
		if !ok {
			t.Errorf("no text model for %s", p)
			continue
		}
		if m.Provider != p || !m.Has(CapTextOutput) {
			t.Errorf("TextModelFor(%s) = %+v", p, m)
		}
	}
}

func TestAccepts(t *testing.T) {
	gpt4o, _ := Lookup("gpt-4o")
	mini, _ := Lookup("gpt-4o-mini")
	dalle, _ := Lookup("dall-e-3")

	tests := []struct {
		name      string
		model     Model
		filename  string
		mediaType string
		want      bool
	}{
		{"image on vision model", gpt4o, "cat.png", "image/png", true},
		{"image on text-only model", mini, "cat.png", "image/png", false},
		{"document", mini, "report.PDF", "application/pdf", true},
		{"unknown extension", mini, "archive.zip", "application/zip", false},
		{"no input capabilities", dalle, "notes.md", "text/markdown", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Accepts(tc.model, tc.filename, tc.mediaType); got != tc.want {
				t.Errorf("Accepts() = %v, want %v", got, tc.want)
			}
		})
	}

	if types := AcceptedFileTypes(gpt4o); types[len(types)-1] != "image/*" {
		t.Errorf("vision model should accept image/*, got %v", types)
	}
	if types := AcceptedFileTypes(dalle); len(types) != 0 {
		t.Errorf("dall-e-3 should accept nothing, got %v", types)
	}
}

func TestResponseLength(t *testing.T) {
	if n := LengthShort.MaxSentences(); n == nil || *n != 3 {
		t.Errorf("short = %v, want 3", n)
	}
	if n := LengthMedium.MaxSentences(); n == nil || *n != 10 {
		t.Errorf("medium = %v, want 10", n)
	}
	if n := LengthOpen.MaxSentences(); n != nil {
		t.Errorf("open = %v, want nil", *n)
	}
	if _, err := ParseResponseLength("huge"); err == nil {
		t.Error("expected error for unknown length")
	}
	if r, err := ParseResponseLength(" Short "); err != nil || r != LengthShort {
		t.Errorf("ParseResponseLength = (%q, %v)", r, err)
	}
}

// =============================================================================
// PRICING AND KEY TESTS
// =============================================================================

func TestPrice(t *testing.T) {
	tokens := IntPtr(1_000_000)

	in, ok := Price(RoleUser, "gpt-4o", tokens)
	if !ok || in < 2.49 || in > 2.51 {
		t.Errorf("gpt-4o input price = %v, %v; want ~2.50", in, ok)
	}
	out, ok := Price(RoleAssistant, "gpt-4o", tokens)
	if !ok || out < 9.99 || out > 10.01 {
		t.Errorf("gpt-4o output price = %v, %v; want ~10", out, ok)
	}

	if _, ok := Price(RoleAssistant, "dall-e-3", tokens); ok {
		t.Error("image model should not be priced")
	}
	if _, ok := Price(RoleUser, "gpt-4o", nil); ok {
		t.Error("unknown usage should not be priced")
	}
	if _, ok := Price(RoleUser, "claude-4-sonnet-20250514", tokens); ok {
		t.Error("model without a price entry should not be priced")
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		provider Provider
		key      string
		valid    bool
	}{
		{ProviderOpenAI, "", true},
		{ProviderOpenAI, "sk-abc", true},
		{ProviderOpenAI, "abc", false},
		{ProviderGoogle, "AIza" + strings.Repeat("x", 35), true},
		{ProviderGoogle, "AIza123", false},
		{ProviderAnthropic, "sk-" + strings.Repeat("a", 48), true},
		{ProviderAnthropic, "sk-short", false},
	}

	for _, tc := range tests {
		err := ValidateAPIKey(tc.provider, tc.key)
		if tc.valid && err != nil {
			t.Errorf("ValidateAPIKey(%s, %q) = %v, want nil", tc.provider, tc.key, err)
		}
		if !tc.valid && !errors.Is(err, ErrInvalidAPIKey) {
			t.Errorf("ValidateAPIKey(%s, %q) = %v, want ErrInvalidAPIKey", tc.provider, tc.key, err)
		}
	}
}

func TestSortChats(t *testing.T) {
	older := NewChat("older")
	newer := NewChat("newer")
	newer.CreatedAt = older.CreatedAt.Add(1)

	chats := []Chat{older, newer}
	SortChats(chats)
	if chats[0].Title != "newer" {
		t.Errorf("SortChats put %q first, want newer", chats[0].Title)
	}
}

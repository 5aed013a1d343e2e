// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/telemetry"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports the complete records. Display options do not apply.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonDocument struct {
	Chat     model.Chat          `json:"chat"`
	Messages []model.Message     `json:"messages"`
	Usage    telemetry.ChatUsage `json:"usage"`
	Exported time.Time           `json:"exported"`
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(conv *Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}
	msgs := conv.Messages
	if msgs == nil {
		msgs = []model.Message{}
	}
	return json.MarshalIndent(jsonDocument{
		Chat:     conv.Chat,
		Messages: msgs,
		Usage:    conv.Usage,
		Exported: e.options.now().UTC(),
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a chat and its messages to Markdown, HTML or JSON.
//
// # Key Types
//
//   - Conversation: a chat, its messages and their usage summary
//   - Exporter: one output format
//   - Options: metadata, timestamps, theme and output directory
//
// # Supported Formats
//
//   - md: Markdown with YAML front matter
//   - html: standalone page, assistant markdown rendered by blackfriday
//   - json: the stored records, content parts tagged by type
//
// # Usage
//
//	conv := export.New(chat, msgs)
//	exp, err := export.ForFormat("html", nil)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(conv, exp, nil)
package export

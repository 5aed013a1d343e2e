// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the storage, chat and
// presentation packages.
//
// # Key Functions
//
// Text:
//   - TruncateWidth: display-width aware truncation with an ellipsis
//   - NormalizeTitle: cleans a generated chat title
//   - Preview: single-line preview of message text
//
// Dates:
//   - DateBucket: relative bucket (today, this week, this month, older)
//
// Formatting:
//   - FormatTokens, FormatCost: compact usage figures
//
// Files:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.NormalizeTitle(`  "Planning a trip to Kyoto"  `)
//	bucket := util.DateBucket(chat.CreatedAt, time.Now())
//	err := util.AtomicWriteFile(path, data, 0600)
package util

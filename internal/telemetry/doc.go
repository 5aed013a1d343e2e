// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry prices token usage and keeps a local cost history.
//
// Usage reported by the providers is recorded on messages by the chat
// orchestrator. This package turns those counts into dollars, per chat
// (Summarize) and per run of the application (CostTracker).
//
// # Key Types
//
//   - ChatUsage: priced token totals of one chat, split by model
//   - CostTracker: usage recorded during this run, persisted on EndSession
//   - SessionCost: one run's totals and its most expensive replies
//   - CostStorage: JSON files under <data dir>/costs
//   - CostTrends: daily and per-model totals over a window of days
//
// # Usage
//
//	usage := telemetry.Summarize(chatID, messages)
//	fmt.Printf("%s spent on %d tokens\n", util.FormatCost(usage.Cost), usage.TotalTokens())
//
//	tracker, _ := telemetry.NewCostTracker(filepath.Join(dataDir, "costs"))
//	tracker.Record(chatID, "gpt-4o", in, out, elapsed)
//	defer tracker.EndSession()
//
// # Privacy
//
// Cost history is local-only. Message text is never written to it; only
// chat ids, model names and token counts.
package telemetry

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Per-token prices in dollars.
var (
	inputPrices = map[string]float64{
		"gemini-2.5-flash-lite": 0.000_000_10, // $0.10 per 1M tokens
		"gemini-2.5-flash":      0.000_000_30,
		"gemini-2.5-pro":        0.000_001_25,
		"gpt-4o-mini":           0.000_000_15,
		"gpt-4o":                0.000_002_50,
	}

	outputPrices = map[string]float64{
		"gemini-2.5-flash-lite": 0.000_000_40,
		"gemini-2.5-flash":      0.000_002_50,
		"gemini-2.5-pro":        0.000_010_00,
		"gpt-4o-mini":           0.000_000_60,
		"gpt-4o":                0.000_010_00,
	}
)

// Price returns the dollar cost of a message's tokens. User messages are
// priced as input and assistant messages as output. The second result is
// false when the price is unknown or there is nothing to price.
func Price(role Role, modelName string, tokens *int) (float64, bool) {
	if tokens == nil || *tokens == 0 || modelName == ImageModelName {
		return 0, false
	}
	table := outputPrices
	if role == RoleUser {
		table = inputPrices
	}
	price, ok := table[modelName]
	if !ok {
		return 0, false
	}
	return price * float64(*tokens), true
}

// MessagePrice prices a stored message.
func MessagePrice(m Message) (float64, bool) {
	return Price(m.Role, m.ModelName(), m.Tokens)
}

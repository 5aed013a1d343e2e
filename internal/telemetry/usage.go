// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"sort"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// ModelUsage is the token usage of one model.
type ModelUsage struct {
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// ChatUsage is the priced token usage of one chat.
type ChatUsage struct {
	ChatID       string       `json:"chat_id"`
	Messages     int          `json:"messages"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
	Cost         float64      `json:"cost"`
	Unpriced     int          `json:"unpriced"` // messages with tokens but no known price
	ByModel      []ModelUsage `json:"by_model"`
}

// TotalTokens returns input plus output tokens.
func (u ChatUsage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Summarize prices the messages of a chat. User tokens count as input and
// assistant tokens as output, priced with the model recorded on each message.
func Summarize(chatID string, msgs []model.Message) ChatUsage {
	usage := ChatUsage{ChatID: chatID, Messages: len(msgs), ByModel: []ModelUsage{}}
	byModel := make(map[string]*ModelUsage)

	for _, m := range msgs {
		tokens := m.TokenCount()
		if tokens == 0 {
			continue
		}
		name := m.ModelName()
		mu, ok := byModel[name]
		if !ok {
			mu = &ModelUsage{Model: name}
			byModel[name] = mu
		}

		if m.Role == model.RoleUser {
			usage.InputTokens += tokens
			mu.InputTokens += tokens
		} else {
			usage.OutputTokens += tokens
			mu.OutputTokens += tokens
		}

		price, ok := model.MessagePrice(m)
		if !ok {
			usage.Unpriced++
			continue
		}
		usage.Cost += price
		mu.Cost += price
	}

	for _, mu := range byModel {
		usage.ByModel = append(usage.ByModel, *mu)
	}
	sort.Slice(usage.ByModel, func(i, j int) bool {
		return usage.ByModel[i].Model < usage.ByModel[j].Model
	})
	return usage
}

// QueryPrice prices one exchange: input tokens at the model's input rate
// and output tokens at its output rate. Unknown counts price as zero.
func QueryPrice(modelName string, input, output *int) float64 {
	in, _ := model.Price(model.RoleUser, modelName, input)
	out, _ := model.Price(model.RoleAssistant, modelName, output)
	return in + out
}

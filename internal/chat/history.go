// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/aljaroudi/t3lepathy/internal/model"
)

// BuildHistory returns the conversation context sent to a model. Images
// the assistant generated are dropped from its turns; user images, files
// and all text are kept, in order. The input is not modified.
func BuildHistory(msgs []model.Message) ([]model.Message, error) {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		m = m.Clone()
		if m.Role == model.RoleAssistant {
			kept := make(model.Content, 0, len(m.Content))
			for _, part := range m.Content {
				switch part.(type) {
				case model.Text, model.File:
					kept = append(kept, part)
				case model.Image:
					// generated images are not sent back
				default:
					return nil, model.UnknownPart(part)
				}
			}
			m.Content = kept
		}
		out = append(out, m)
	}
	return out, nil
}

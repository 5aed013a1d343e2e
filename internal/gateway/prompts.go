// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"fmt"
	"strings"
)

const (
	titlePrompt = "Generate a short, descriptive title (max 5 words) for this conversation " +
		"based on the user's first message. The title should capture the main topic or " +
		"purpose of the discussion."

	imageIntentPrompt = "You are a helpful assistant that can determine if a message expects " +
		"an image. If it does, return 'true'. If it doesn't, return 'false'. If you are not " +
		"sure, return 'false'."
)

// SystemPrompt appends the sentence cap to base when one is set.
func SystemPrompt(base string, maxSentences *int) string {
	if maxSentences == nil {
		return base
	}
	return base + fmt.Sprintf(" You will respond in %d sentences.", *maxSentences)
}

// expectsImage reads a classifier answer. Any answer containing a
// lowercase "true" counts.
func expectsImage(answer string) bool {
	return strings.Contains(answer, "true")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// MaxResponseSize caps error bodies read from providers.
const MaxResponseSize = 10 * 1024 * 1024

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next event and returns its type and data.
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line ends an event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			eventType = ""
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// id:, retry: and comments are ignored
	}
}

// =============================================================================
// ERROR RESPONSES
// =============================================================================

// errorBody covers the error envelopes of Google and Anthropic.
type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// handleErrorResponse converts a non-200 response into an *APIError.
func handleErrorResponse(p model.Provider, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))

	msg := http.StatusText(resp.StatusCode)
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	} else if len(bytes.TrimSpace(body)) > 0 {
		msg = string(bytes.TrimSpace(body))
	}
	return &APIError{Provider: p, Status: resp.StatusCode, Message: msg}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// =============================================================================
// GATEWAY INTERFACE
// =============================================================================

// Gateway is everything the chat client asks of a model provider.
type Gateway interface {
	// ClassifyImageIntent reports whether text asks for an image. It returns
	// false without calling the provider unless m can produce images.
	ClassifyImageIntent(ctx context.Context, text string, m model.Model, key string) (bool, error)

	// GenerateImage renders prompt with the image model.
	GenerateImage(ctx context.Context, prompt, key string) (Image, error)

	// StreamText starts a streamed reply.
	StreamText(ctx context.Context, req StreamRequest) (Stream, error)

	// GenerateTitle returns a short title for a chat that opens with firstText.
	GenerateTitle(ctx context.Context, firstText string, m model.Model, key string) (string, error)
}

// StreamRequest describes one streamed reply.
type StreamRequest struct {
	Model        model.Model
	Key          string
	SystemPrompt string

	// History is the conversation so far, oldest first, already stripped of
	// content the provider should not see.
	History []model.Message

	// MaxSentences caps the reply length when set.
	MaxSentences *int

	// Grounding enables provider web search where supported.
	Grounding bool
}

// Stream is a pull-based reply. Recv returns io.EOF after the last chunk.
// The consumer controls pacing; nothing is read ahead of Recv.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Chunk is one piece of a streamed reply. Text may be empty; Usage is set
// at most once, normally on the last chunk.
type Chunk struct {
	Text  string
	Usage *Usage
}

// Usage is the token accounting the provider reported.
type Usage struct {
	InputTokens  *int
	OutputTokens *int
}

// Image is a generated image.
type Image struct {
	MediaType string
	Base64    string
}

// DataURI returns the image as a data URI.
func (i Image) DataURI() string {
	return "data:" + i.MediaType + ";base64," + i.Base64
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrAuthFailed indicates the provider rejected the API key.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the provider does not know the model.
	ErrModelNotFound = errors.New("model not found")

	// ErrProvider is any other provider-side failure.
	ErrProvider = errors.New("provider error")

	// ErrUnsupported indicates the provider cannot do what was asked.
	ErrUnsupported = errors.New("unsupported by provider")
)

// APIError is an error response from a provider.
type APIError struct {
	Provider model.Provider
	Status   int
	Message  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s error (HTTP %d): %s", e.Provider, e.Status, e.Message)
}

// Unwrap maps the HTTP status to one of the sentinel errors.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == 401 || e.Status == 403:
		return ErrAuthFailed
	case e.Status == 429:
		return ErrRateLimited
	case e.Status == 404:
		return ErrModelNotFound
	default:
		return ErrProvider
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Collect drains a stream and returns the full text and the last usage seen.
func Collect(s Stream) (string, *Usage, error) {
	defer s.Close()
	var (
		text  []byte
		usage *Usage
	)
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return string(text), usage, nil
		}
		if err != nil {
			return string(text), usage, err
		}
		text = append(text, chunk.Text...)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// =============================================================================
// OPENAI CLIENT
// =============================================================================

type openaiProvider struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func newOpenAIProvider(opts Options) *openaiProvider {
	return &openaiProvider{
		baseURL:    opts.OpenAIBaseURL,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}
}

// client builds a go-openai client for key. Keys change at runtime, so
// clients are cheap and per call.
func (p *openaiProvider) client(key string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	if p.baseURL != "" {
		cfg.BaseURL = p.baseURL
	}
	cfg.HTTPClient = p.httpClient
	return openai.NewClientWithConfig(cfg)
}

func (p *openaiProvider) complete(ctx context.Context, m model.Model, key, system, prompt string) (string, error) {
	resp, err := p.client(key).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.Name,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &APIError{Provider: model.ProviderOpenAI, Message: "no completion choices returned"}
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openaiProvider) stream(ctx context.Context, req StreamRequest) (Stream, error) {
	if req.Grounding {
		p.logger.Info("web search is not available on chat completions, sending without it", "model", req.Model.Name)
	}

	msgs, err := p.messages(SystemPrompt(req.SystemPrompt, req.MaxSentences), req.History)
	if err != nil {
		return nil, err
	}

	s, err := p.client(req.Key).CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:         req.Model.Name,
		Messages:      msgs,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	return &openaiStream{stream: s}, nil
}

func (p *openaiProvider) generateImage(ctx context.Context, prompt, key string) (Image, error) {
	resp, err := p.client(key).CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          openai.CreateImageModelDallE3,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return Image{}, mapOpenAIError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return Image{}, &APIError{Provider: model.ProviderOpenAI, Message: "no image data returned"}
	}
	return Image{MediaType: "image/png", Base64: resp.Data[0].B64JSON}, nil
}

// messages converts history into chat completion messages. Text-only turns
// use plain content; turns with images use multi-part content.
func (p *openaiProvider) messages(system string, history []model.Message) ([]openai.ChatCompletionMessage, error) {
	out := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: system}}

	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}

		var parts []openai.ChatMessagePart
		hasImage := false
		for _, part := range msg.Content {
			switch v := part.(type) {
			case model.Text:
				if v.Text != "" {
					parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: v.Text})
				}
			case model.Image:
				hasImage = true
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: v.ImageDataURI, Detail: openai.ImageURLDetailAuto},
				})
			case model.File:
				text, ok := fileText(v)
				if !ok {
					p.logger.Warn("skipping binary attachment", "file", v.Filename, "media_type", v.MediaType)
					continue
				}
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
			default:
				return nil, model.UnknownPart(part)
			}
		}
		if len(parts) == 0 {
			continue
		}

		if !hasImage && len(parts) == 1 {
			out = append(out, openai.ChatCompletionMessage{Role: role, Content: parts[0].Text})
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return out, nil
}

// =============================================================================
// OPENAI STREAM
// =============================================================================

type openaiStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openaiStream) Recv() (Chunk, error) {
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return Chunk{}, io.EOF
	}
	if err != nil {
		return Chunk{}, mapOpenAIError(err)
	}

	var chunk Chunk
	if len(resp.Choices) > 0 {
		chunk.Text = resp.Choices[0].Delta.Content
	}
	if resp.Usage != nil {
		chunk.Usage = &Usage{
			InputTokens:  model.IntPtr(resp.Usage.PromptTokens),
			OutputTokens: model.IntPtr(resp.Usage.CompletionTokens),
		}
	}
	return chunk, nil
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}

// mapOpenAIError converts go-openai errors to *APIError.
func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: model.ProviderOpenAI, Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Provider: model.ProviderOpenAI, Status: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("openai request: %w", err)
}

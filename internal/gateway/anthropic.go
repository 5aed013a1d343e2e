// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

const anthropicVersion = "2023-06-01"

// =============================================================================
// ANTHROPIC WIRE TYPES
// =============================================================================

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream,omitempty"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Title  string           `json:"title,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicTool struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	MaxUses int    `json:"max_uses,omitempty"`
}

type anthropicUsage struct {
	InputTokens  *int `json:"input_tokens"`
	OutputTokens *int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage anthropicUsage `json:"usage"`
}

// anthropicEvent is the union of the streaming event payloads we read.
type anthropicEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *anthropicUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// ANTHROPIC CLIENT
// =============================================================================

type anthropicProvider struct {
	baseURL   string
	maxTokens int
	doer      *httpDoer
	logger    *slog.Logger
}

func newAnthropicProvider(opts Options) *anthropicProvider {
	return &anthropicProvider{
		baseURL:   strings.TrimRight(opts.AnthropicBaseURL, "/"),
		maxTokens: opts.MaxTokens,
		doer: &httpDoer{
			provider:   model.ProviderAnthropic,
			client:     opts.HTTPClient,
			maxRetries: opts.MaxRetries,
			logger:     opts.Logger,
		},
		logger: opts.Logger,
	}
}

func (p *anthropicProvider) headers(key string) map[string]string {
	return map[string]string{
		"x-api-key":         key,
		"anthropic-version": anthropicVersion,
	}
}

func (p *anthropicProvider) complete(ctx context.Context, m model.Model, key, system, prompt string) (string, error) {
	body := anthropicRequest{
		Model:     m.Name,
		MaxTokens: p.maxTokens,
		System:    system,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicBlock{{Type: "text", Text: prompt}}},
		},
	}
	resp, err := p.doer.postJSON(ctx, p.baseURL+"/v1/messages", p.headers(key), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out anthropicResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseSize)).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse anthropic response: %w", err)
	}
	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func (p *anthropicProvider) stream(ctx context.Context, req StreamRequest) (Stream, error) {
	msgs, err := p.messages(req.History)
	if err != nil {
		return nil, err
	}
	body := anthropicRequest{
		Model:     req.Model.Name,
		MaxTokens: p.maxTokens,
		System:    SystemPrompt(req.SystemPrompt, req.MaxSentences),
		Messages:  msgs,
		Stream:    true,
	}
	if req.Grounding {
		body.Tools = []anthropicTool{{Type: "web_search_20250305", Name: "web_search", MaxUses: 5}}
	}

	resp, err := p.doer.postJSON(ctx, p.baseURL+"/v1/messages", p.headers(req.Key), body)
	if err != nil {
		return nil, err
	}
	return &anthropicStream{body: resp.Body, events: NewSSEReader(resp.Body)}, nil
}

func (p *anthropicProvider) messages(history []model.Message) ([]anthropicMessage, error) {
	var out []anthropicMessage
	for _, msg := range history {
		var blocks []anthropicBlock
		for _, part := range msg.Content {
			switch v := part.(type) {
			case model.Text:
				if v.Text != "" {
					blocks = append(blocks, anthropicBlock{Type: "text", Text: v.Text})
				}
			case model.Image:
				blocks = append(blocks, anthropicBlock{
					Type:   "image",
					Source: &anthropicSource{Type: "base64", MediaType: v.MediaType, Data: dataPayload(v.ImageDataURI)},
				})
			case model.File:
				if v.MediaType == "application/pdf" {
					blocks = append(blocks, anthropicBlock{
						Type:   "document",
						Title:  v.Filename,
						Source: &anthropicSource{Type: "base64", MediaType: v.MediaType, Data: dataPayload(v.DataURI)},
					})
					continue
				}
				text, ok := fileText(v)
				if !ok {
					p.logger.Warn("skipping binary attachment", "file", v.Filename, "media_type", v.MediaType)
					continue
				}
				blocks = append(blocks, anthropicBlock{Type: "text", Text: text})
			default:
				return nil, model.UnknownPart(part)
			}
		}
		if len(blocks) > 0 {
			out = append(out, anthropicMessage{Role: string(msg.Role), Content: blocks})
		}
	}
	return out, nil
}

// =============================================================================
// ANTHROPIC STREAM
// =============================================================================

// anthropicStream yields text deltas and reports usage on message_stop.
type anthropicStream struct {
	body   io.ReadCloser
	events *SSEReader
	input  *int
	output *int
	done   bool
}

func (s *anthropicStream) Recv() (Chunk, error) {
	for {
		if s.done {
			return Chunk{}, io.EOF
		}

		_, data, err := s.events.ReadEvent()
		if errors.Is(err, io.EOF) {
			s.done = true
			return s.usageChunk()
		}
		if err != nil {
			return Chunk{}, fmt.Errorf("reading anthropic stream: %w", err)
		}

		var ev anthropicEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return Chunk{}, fmt.Errorf("failed to parse anthropic event: %w", err)
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				s.input = ev.Message.Usage.InputTokens
				s.output = ev.Message.Usage.OutputTokens
			}
		case "content_block_delta":
			if ev.Delta != nil && ev.Delta.Type == "text_delta" {
				return Chunk{Text: ev.Delta.Text}, nil
			}
		case "message_delta":
			if ev.Usage != nil && ev.Usage.OutputTokens != nil {
				s.output = ev.Usage.OutputTokens
			}
		case "message_stop":
			s.done = true
			return s.usageChunk()
		case "error":
			msg := "stream error"
			if ev.Error != nil {
				msg = ev.Error.Type + ": " + ev.Error.Message
			}
			return Chunk{}, &APIError{Provider: model.ProviderAnthropic, Message: msg}
		}
		// ping, content_block_start/stop and tool events carry no text
	}
}

func (s *anthropicStream) usageChunk() (Chunk, error) {
	if s.input == nil && s.output == nil {
		return Chunk{}, io.EOF
	}
	usage := &Usage{InputTokens: s.input, OutputTokens: s.output}
	s.input, s.output = nil, nil
	return Chunk{Usage: usage}, nil
}

func (s *anthropicStream) Close() error {
	return s.body.Close()
}

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
	"net/url"
	"strings"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// =============================================================================
// GOOGLE WIRE TYPES
// =============================================================================

type googleRequest struct {
	SystemInstruction *googleContent `json:"systemInstruction,omitempty"`
	Contents          []googleContent `json:"contents"`
	Tools             []googleTool    `json:"tools,omitempty"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *googleBlob `json:"inlineData,omitempty"`
}

type googleBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type googleTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *googleResponse) text() string {
	var b strings.Builder
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// =============================================================================
// GOOGLE CLIENT
// =============================================================================

type googleProvider struct {
	baseURL string
	doer    *httpDoer
	logger  *slog.Logger
}

func newGoogleProvider(opts Options) *googleProvider {
	return &googleProvider{
		baseURL: strings.TrimRight(opts.GoogleBaseURL, "/"),
		doer: &httpDoer{
			provider:   model.ProviderGoogle,
			client:     opts.HTTPClient,
			maxRetries: opts.MaxRetries,
			logger:     opts.Logger,
		},
		logger: opts.Logger,
	}
}

func (p *googleProvider) endpoint(modelName, method string) string {
	u := fmt.Sprintf("%s/v1beta/models/%s:%s", p.baseURL, url.PathEscape(modelName), method)
	if method == "streamGenerateContent" {
		u += "?alt=sse"
	}
	return u
}

func (p *googleProvider) complete(ctx context.Context, m model.Model, key, system, prompt string) (string, error) {
	body := googleRequest{
		SystemInstruction: &googleContent{Parts: []googlePart{{Text: system}}},
		Contents:          []googleContent{{Role: "user", Parts: []googlePart{{Text: prompt}}}},
	}
	resp, err := p.doer.postJSON(ctx, p.endpoint(m.Name, "generateContent"), map[string]string{"x-goog-api-key": key}, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out googleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseSize)).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse google response: %w", err)
	}
	if out.Error != nil {
		return "", &APIError{Provider: model.ProviderGoogle, Status: out.Error.Code, Message: out.Error.Message}
	}
	return out.text(), nil
}

func (p *googleProvider) stream(ctx context.Context, req StreamRequest) (Stream, error) {
	contents, err := p.contents(req.History)
	if err != nil {
		return nil, err
	}
	body := googleRequest{
		SystemInstruction: &googleContent{Parts: []googlePart{{Text: SystemPrompt(req.SystemPrompt, req.MaxSentences)}}},
		Contents:          contents,
	}
	if req.Grounding {
		body.Tools = []googleTool{{GoogleSearch: &struct{}{}}}
	}

	resp, err := p.doer.postJSON(ctx, p.endpoint(req.Model.Name, "streamGenerateContent"), map[string]string{"x-goog-api-key": req.Key}, body)
	if err != nil {
		return nil, err
	}
	return &googleStream{body: resp.Body, events: NewSSEReader(resp.Body)}, nil
}

func (p *googleProvider) contents(history []model.Message) ([]googleContent, error) {
	var out []googleContent
	for _, msg := range history {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}

		var parts []googlePart
		for _, part := range msg.Content {
			switch v := part.(type) {
			case model.Text:
				if v.Text != "" {
					parts = append(parts, googlePart{Text: v.Text})
				}
			case model.Image:
				parts = append(parts, googlePart{InlineData: &googleBlob{MimeType: v.MediaType, Data: dataPayload(v.ImageDataURI)}})
			case model.File:
				parts = append(parts, googlePart{InlineData: &googleBlob{MimeType: v.MediaType, Data: dataPayload(v.DataURI)}})
			default:
				return nil, model.UnknownPart(part)
			}
		}
		if len(parts) > 0 {
			out = append(out, googleContent{Role: role, Parts: parts})
		}
	}
	return out, nil
}

// =============================================================================
// GOOGLE STREAM
// =============================================================================

// googleStream reports usage once, after the last text chunk. Every event
// carries running usage metadata; only the final value matters.
type googleStream struct {
	body   io.ReadCloser
	events *SSEReader
	usage  *Usage
	done   bool
}

func (s *googleStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}

	_, data, err := s.events.ReadEvent()
	if errors.Is(err, io.EOF) {
		s.done = true
		if s.usage != nil {
			return Chunk{Usage: s.usage}, nil
		}
		return Chunk{}, io.EOF
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("reading google stream: %w", err)
	}

	var resp googleResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Chunk{}, fmt.Errorf("failed to parse google chunk: %w", err)
	}
	if resp.Error != nil {
		return Chunk{}, &APIError{Provider: model.ProviderGoogle, Status: resp.Error.Code, Message: resp.Error.Message}
	}
	if resp.UsageMetadata != nil {
		s.usage = &Usage{
			InputTokens:  model.IntPtr(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: model.IntPtr(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return Chunk{Text: resp.text()}, nil
}

func (s *googleStream) Close() error {
	return s.body.Close()
}

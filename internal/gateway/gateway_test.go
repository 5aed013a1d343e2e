// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

func testRouter(t *testing.T, handler http.HandlerFunc) *Router {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts := DefaultOptions()
	opts.OpenAIBaseURL = server.URL + "/v1"
	opts.GoogleBaseURL = server.URL
	opts.AnthropicBaseURL = server.URL
	opts.HTTPClient = server.Client()
	opts.RequestsPerSecond = 0
	opts.MaxRetries = 2
	return NewRouter(opts)
}

func mustModel(t *testing.T, name string) model.Model {
	t.Helper()
	m, ok := model.Lookup(name)
	require.True(t, ok, "model %s missing from catalog", name)
	return m
}

func history(texts ...string) []model.Message {
	var out []model.Message
	for i, text := range texts {
		msg := model.NewUserMessage("chat", "", model.Text{Text: text})
		if i%2 == 1 {
			msg.Role = model.RoleAssistant
		}
		out = append(out, msg)
	}
	return out
}

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader_ReadEvent(t *testing.T) {
	input := ": comment\n" +
		"event: message_start\n" +
		"data: {\"a\":1}\n\n" +
		"data: line one\r\n" +
		"data: line two\r\n\r\n" +
		"id: 7\n" +
		"data: tail"

	r := NewSSEReader(strings.NewReader(input))

	ev, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "message_start", ev)
	assert.Equal(t, `{"a":1}`, string(data))

	ev, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "", ev)
	assert.Equal(t, "line one\nline two", string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "tail", string(data))

	_, _, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}

// =============================================================================
// PROMPT TESTS
// =============================================================================

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, "Be nice.", SystemPrompt("Be nice.", nil))
	assert.Equal(t, "Be nice. You will respond in 3 sentences.", SystemPrompt("Be nice.", model.IntPtr(3)))
}

func TestExpectsImage(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"true", true},
		{"It is true.", true},
		{"false", false},
		{"", false},
		{"True", false},
		{"TRUE", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expectsImage(tt.answer), "answer %q", tt.answer)
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{401, ErrAuthFailed},
		{403, ErrAuthFailed},
		{404, ErrModelNotFound},
		{429, ErrRateLimited},
		{500, ErrProvider},
		{0, ErrProvider},
	}
	for _, tt := range tests {
		err := error(&APIError{Provider: model.ProviderGoogle, Status: tt.status, Message: "x"})
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}
}

// =============================================================================
// GOOGLE TESTS
// =============================================================================

func TestGoogle_StreamText(t *testing.T) {
	var body googleRequest
	r := testRouter(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:streamGenerateContent", req.URL.Path)
		assert.Equal(t, "sse", req.URL.Query().Get("alt"))
		assert.Equal(t, "AIza-test", req.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`+"\n\n")
		io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"text":""}]}}]}`+"\n\n")
		io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"text":"lo"}]}}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":2}}`+"\n\n")
	})

	stream, err := r.StreamText(context.Background(), StreamRequest{
		Model:        mustModel(t, "gemini-2.5-flash"),
		Key:          "AIza-test",
		SystemPrompt: "Be nice.",
		History:      history("hi", "hello", "again"),
		MaxSentences: model.IntPtr(3),
		Grounding:    true,
	})
	require.NoError(t, err)

	var texts []string
	var usage *Usage
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		texts = append(texts, chunk.Text)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	require.NoError(t, stream.Close())

	assert.Equal(t, []string{"Hel", "", "lo", ""}, texts)
	require.NotNil(t, usage)
	assert.Equal(t, 7, *usage.InputTokens)
	assert.Equal(t, 2, *usage.OutputTokens)

	require.Len(t, body.Contents, 3)
	assert.Equal(t, "model", body.Contents[1].Role)
	assert.Equal(t, "Be nice. You will respond in 3 sentences.", body.SystemInstruction.Parts[0].Text)
	require.Len(t, body.Tools, 1)
	assert.NotNil(t, body.Tools[0].GoogleSearch)
}

func TestGoogle_ErrorMapping(t *testing.T) {
	r := testRouter(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	})

	_, err := r.GenerateTitle(context.Background(), "hi", mustModel(t, "gemini-2.5-flash-lite"), "AIza-bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "API key not valid", apiErr.Message)
}

func TestGoogle_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	r := testRouter(t, func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Pasta Night"}]}}]}`)
	})

	title, err := r.GenerateTitle(context.Background(), "recipes?", mustModel(t, "gemini-2.5-flash-lite"), "AIza-test")
	require.NoError(t, err)
	assert.Equal(t, "Pasta Night", title)
	assert.Equal(t, int32(2), calls.Load())
}

// =============================================================================
// ANTHROPIC TESTS
// =============================================================================

func TestAnthropic_StreamText(t *testing.T) {
	var body anthropicRequest
	r := testRouter(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/v1/messages", req.URL.Path)
		assert.Equal(t, anthropicVersion, req.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))

		events := []string{
			`event: message_start` + "\n" + `data: {"type":"message_start","message":{"usage":{"input_tokens":11,"output_tokens":1}}}`,
			`event: ping` + "\n" + `data: {"type":"ping"}`,
			`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`,
			`event: content_block_delta` + "\n" + `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`,
			`event: message_delta` + "\n" + `data: {"type":"message_delta","usage":{"output_tokens":5}}`,
			`event: message_stop` + "\n" + `data: {"type":"message_stop"}`,
		}
		for _, e := range events {
			io.WriteString(w, e+"\n\n")
		}
	})

	stream, err := r.StreamText(context.Background(), StreamRequest{
		Model:        mustModel(t, "claude-4-sonnet-20250514"),
		Key:          "sk-test",
		SystemPrompt: "Be nice.",
		History:      history("hi"),
	})
	require.NoError(t, err)

	text, usage, err := Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	require.NotNil(t, usage)
	assert.Equal(t, 11, *usage.InputTokens)
	assert.Equal(t, 5, *usage.OutputTokens)

	assert.True(t, body.Stream)
	assert.Empty(t, body.Tools, "web search is only sent with grounding")
	assert.Equal(t, DefaultMaxTokens, body.MaxTokens)
}

func TestAnthropic_StreamErrorEvent(t *testing.T) {
	r := testRouter(t, func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"par"}}`+"\n\n")
		io.WriteString(w, `data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`+"\n\n")
	})

	stream, err := r.StreamText(context.Background(), StreamRequest{
		Model:     mustModel(t, "claude-4-sonnet-20250514"),
		Key:       "sk-test",
		History:   history("hi"),
		Grounding: true,
	})
	require.NoError(t, err)

	text, _, err := Collect(stream)
	assert.Equal(t, "par", text)
	assert.ErrorIs(t, err, ErrProvider)
}

// =============================================================================
// OPENAI TESTS
// =============================================================================

func TestOpenAI_StreamText(t *testing.T) {
	var body map[string]any
	r := testRouter(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/v1/chat/completions", req.URL.Path)
		assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"id":"1","choices":[{"index":0,"delta":{"content":"A"}}]}`+"\n\n")
		io.WriteString(w, `data: {"id":"1","choices":[{"index":0,"delta":{"content":"B"}}]}`+"\n\n")
		io.WriteString(w, `data: {"id":"1","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	})

	stream, err := r.StreamText(context.Background(), StreamRequest{
		Model:   mustModel(t, "gpt-4o"),
		Key:     "sk-test",
		History: history("hi"),
	})
	require.NoError(t, err)

	text, usage, err := Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "AB", text)
	require.NotNil(t, usage)
	assert.Equal(t, 3, *usage.InputTokens)
	assert.Equal(t, 2, *usage.OutputTokens)

	opts, _ := body["stream_options"].(map[string]any)
	assert.Equal(t, true, opts["include_usage"])
}

func TestOpenAI_GenerateImage(t *testing.T) {
	r := testRouter(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/v1/images/generations", req.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "dall-e-3", body["model"])
		assert.Equal(t, "b64_json", body["response_format"])
		io.WriteString(w, `{"created":1,"data":[{"b64_json":"iVBORw0KGgo="}]}`)
	})

	img, err := r.GenerateImage(context.Background(), "a cat", "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", img.DataURI())
}

func TestOpenAI_AuthError(t *testing.T) {
	r := testRouter(t, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`)
	})

	_, err := r.StreamText(context.Background(), StreamRequest{
		Model:   mustModel(t, "gpt-4o-mini"),
		Key:     "sk-bad",
		History: history("hi"),
	})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

// =============================================================================
// ROUTER TESTS
// =============================================================================

func TestRouter_ClassifySkipsTextModels(t *testing.T) {
	var calls atomic.Int32
	r := testRouter(t, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
	})

	got, err := r.ClassifyImageIntent(context.Background(), "draw a cat", mustModel(t, "gpt-4o"), "sk-test")
	require.NoError(t, err)
	assert.False(t, got)
	assert.Equal(t, int32(0), calls.Load())
}

func TestRouter_ClassifyImageModelUsesTextModel(t *testing.T) {
	var gotModel string
	r := testRouter(t, func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		gotModel, _ = body["model"].(string)
		io.WriteString(w, `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"true"}}]}`)
	})

	got, err := r.ClassifyImageIntent(context.Background(), "draw a cat", mustModel(t, "dall-e-3"), "sk-test")
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, "gpt-4o-mini", gotModel)
}

func TestRouter_StreamRejectsImageOnlyModel(t *testing.T) {
	r := testRouter(t, func(w http.ResponseWriter, req *http.Request) {})
	_, err := r.StreamText(context.Background(), StreamRequest{Model: mustModel(t, "dall-e-3")})
	assert.ErrorIs(t, err, ErrUnsupported)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/gateway"
	"github.com/aljaroudi/t3lepathy/internal/gateway/gatewaytest"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/session"
	"github.com/aljaroudi/t3lepathy/internal/settings"
	"github.com/aljaroudi/t3lepathy/internal/storage"
)

var googleKey = "AIza" + strings.Repeat("s", 35)

type testServer struct {
	srv  *Server
	http *httptest.Server
	orch *chat.Orchestrator
	fake *gatewaytest.Fake
}

func newTestServer(t *testing.T, fake *gatewaytest.Fake, opts Options) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(filepath.Join(t.TempDir(), "t3.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := settings.New(settings.NewMemoryKV(), nil)
	require.NoError(t, svc.SetAPIKey(ctx, model.ProviderGoogle, googleKey))

	orch := chat.New(db, fake, session.New(), svc, chat.Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, orch.Load(ctx))

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := New(orch, opts)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		hs.Close()
	})
	return &testServer{srv: srv, http: hs, orch: orch, fake: fake}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// =============================================================================
// HEALTH AND MODELS
// =============================================================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t, gatewaytest.New("t"), Options{Version: "1.2.3"})

	resp := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	body := decode[HealthResponse](t, resp)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, 1, body.Chats, "Load creates the first chat")
	assert.Equal(t, []model.Provider{model.ProviderGoogle}, body.Providers)
}

func TestModels(t *testing.T) {
	ts := newTestServer(t, gatewaytest.New("t"), Options{})

	resp := ts.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Models []ModelInfo `json:"models"`
	}](t, resp)

	require.Len(t, body.Models, len(model.Catalog()))
	byName := map[string]ModelInfo{}
	for _, m := range body.Models {
		byName[m.Name] = m
	}
	assert.True(t, byName["gemini-2.5-flash"].Configured)
	assert.False(t, byName["gpt-4o"].Configured)
	assert.True(t, byName[model.DefaultModelName].Current)
	assert.Contains(t, byName["gpt-4o"].AcceptedFiles, "image/*")
	assert.InDelta(t, 0.10, byName["gemini-2.5-flash-lite"].InputPrice, 1e-9)
	assert.Zero(t, byName[model.ImageModelName].OutputPrice)
}

func TestCosts_DisabledWithoutTracker(t *testing.T) {
	ts := newTestServer(t, gatewaytest.New("t"), Options{})
	resp := ts.do(t, http.MethodGet, "/api/costs", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// CHATS
// =============================================================================

func TestChatLifecycle(t *testing.T) {
	ts := newTestServer(t, gatewaytest.New("t"), Options{})

	resp := ts.do(t, http.MethodPost, "/api/chats", map[string]string{"title": "  Trip plans "})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[model.Chat](t, resp)
	assert.Equal(t, "Trip plans", created.Title)

	resp = ts.do(t, http.MethodGet, "/api/chats", nil)
	list := decode[struct {
		Chats []ChatSummary `json:"chats"`
	}](t, resp)
	require.Len(t, list.Chats, 2)
	assert.Equal(t, created.ID, list.Chats[0].ID, "newest first")
	assert.True(t, list.Chats[0].Current)
	assert.Equal(t, "TODAY", list.Chats[0].Bucket)

	resp = ts.do(t, http.MethodPatch, "/api/chats/"+created.ID, map[string]string{"title": "Holiday"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Holiday", decode[model.Chat](t, resp).Title)

	resp = ts.do(t, http.MethodDelete, "/api/chats/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/chats/"+created.ID+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatErrors(t *testing.T) {
	ts := newTestServer(t, gatewaytest.New("t"), Options{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"rename missing", http.MethodPatch, "/api/chats/nope", map[string]string{"title": "x"}, http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/api/chats/nope", nil, http.StatusNotFound},
		{"usage missing", http.MethodGet, "/api/chats/nope/usage", nil, http.StatusNotFound},
		{"unknown field", http.MethodPost, "/api/chats", map[string]string{"name": "x"}, http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/api/chats", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

// =============================================================================
// SEND
// =============================================================================

func TestSend(t *testing.T) {
	fake := gatewaytest.New("Greeting", "Hel", "lo")
	fake.Chunks = append(fake.Chunks, gateway.Chunk{Usage: &gateway.Usage{InputTokens: model.IntPtr(5), OutputTokens: model.IntPtr(2)}})
	ts := newTestServer(t, fake, Options{})
	chatID := ts.orch.State().CurrentChatID()

	resp := ts.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", SendRequest{Text: "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[ChatMessages](t, resp)

	assert.Equal(t, "Greeting", body.Chat.Title)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, model.RoleUser, body.Messages[0].Role)
	assert.Equal(t, model.Content{model.Text{Text: "Hello"}}, body.Messages[1].Content)

	resp = ts.do(t, http.MethodGet, "/api/chats/"+chatID+"/usage", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	usage := decode[map[string]any](t, resp)
	assert.EqualValues(t, 7, usage["total_tokens"])

	assert.EqualValues(t, 1, ts.srv.Stats().Sends)
	assert.Zero(t, ts.srv.Stats().FailedSends)
}

func TestSend_WithAttachment(t *testing.T) {
	fake := gatewaytest.New("Notes", "ok")
	ts := newTestServer(t, fake, Options{})
	chatID := ts.orch.State().CurrentChatID()

	resp := ts.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", SendRequest{
		Text:        "summarise",
		Attachments: []Attachment{{Filename: "notes.md", MediaType: "text/markdown", Data: []byte("# notes")}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[ChatMessages](t, resp)
	require.Len(t, body.Messages, 2)
	require.Len(t, body.Messages[0].Content, 2)
	file, ok := body.Messages[0].Content[1].(model.File)
	require.True(t, ok, "part is %T", body.Messages[0].Content[1])
	assert.Equal(t, "notes.md", file.Filename)
}

func TestSend_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		req   SendRequest
		field string
	}{
		{"blank text", SendRequest{Text: "  "}, "text"},
		{"unknown model", SendRequest{Text: "hi", Model: "gpt-9"}, "model"},
		{"no key for provider", SendRequest{Text: "hi", Model: "gpt-4o"}, "apiKey"},
		{"image to text-only model", SendRequest{
			Text:        "look",
			Attachments: []Attachment{{Filename: "cat.png", MediaType: "image/png", Data: []byte{1, 2, 3}}},
		}, "attachments[0]"},
		{"empty attachment", SendRequest{
			Text:        "read",
			Attachments: []Attachment{{Filename: "a.txt", MediaType: "text/plain"}},
		}, "attachments[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := gatewaytest.New("t", "never")
			ts := newTestServer(t, fake, Options{})
			chatID := ts.orch.State().CurrentChatID()

			resp := ts.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", tt.req)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decode[errorBody](t, resp)
			assert.Equal(t, tt.field, body.Error.Field)
			assert.Empty(t, fake.Requests())
		})
	}
}

func TestSend_GatewayFailure(t *testing.T) {
	fake := gatewaytest.New("t")
	fake.StartErr = &gateway.APIError{Provider: model.ProviderGoogle, Message: "boom"}
	ts := newTestServer(t, fake, Options{})
	chatID := ts.orch.State().CurrentChatID()

	resp := ts.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", SendRequest{Text: "hi"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.EqualValues(t, 1, ts.srv.Stats().FailedSends)
}

func TestCancel_Idle(t *testing.T) {
	ts := newTestServer(t, gatewaytest.New("t"), Options{})
	resp := ts.do(t, http.MethodPost, "/api/chats/any/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]bool{"canceled": false}, decode[map[string]bool](t, resp))
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExport(t *testing.T) {
	ts := newTestServer(t, gatewaytest.New("Cats", "Meow"), Options{})
	chatID := ts.orch.State().CurrentChatID()
	resp := ts.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", SendRequest{Text: "hello cat"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/chats/"+chatID+"/export?format=md", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".md")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Cats")
	assert.Contains(t, string(data), "Meow")

	resp = ts.do(t, http.MethodGet, "/api/chats/"+chatID+"/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestAuth(t *testing.T) {
	const token = "0123456789abcdef"
	ts := newTestServer(t, gatewaytest.New("t"), Options{Token: token})

	resp := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health stays open")

	resp = ts.do(t, http.MethodGet, "/api/chats", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.http.URL+"/api/chats", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	authed, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	defer authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/chats?access_token="+token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestValidateBearerToken(t *testing.T) {
	assert.True(t, ValidateBearerToken("abc", "abc"))
	assert.False(t, ValidateBearerToken("abd", "abc"))
	assert.False(t, ValidateBearerToken("", ""))
	assert.False(t, ValidateBearerToken("abc", ""))
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst spent")
	assert.True(t, rl.Allow("10.0.0.2"), "clients are independent")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "refilled")

	now = now.Add(time.Hour)
	rl.Allow("10.0.0.3")
	assert.Len(t, rl.clients, 1, "idle clients are swept")
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("127.0.0.1"))
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(NewRateLimiter(0.001, 1))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRecoveryMiddleware(t *testing.T) {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	h := Chain(RecoveryMiddleware(log), LoggingMiddleware(log))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), "panic recovered")
	assert.Contains(t, logs.String(), "kaboom")
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("a"), mw("b"), mw("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestLocalOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:5173", true},
		{"http://[::1]:8080", true},
		{"https://evil.example", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:7878/api/events", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, localOrigin(r), "origin %q", tt.origin)
	}
}

// =============================================================================
// EVENTS
// =============================================================================

func TestEvents_StreamsStateChanges(t *testing.T) {
	fake := gatewaytest.New("Streamed", "a", "b")
	ts := newTestServer(t, fake, Options{})
	chatID := ts.orch.State().CurrentChatID()

	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var ready EventFrame
	require.NoError(t, conn.ReadJSON(&ready))
	assert.Equal(t, EventReady, ready.Kind)
	assert.Equal(t, chatID, ready.CurrentChatID)
	require.Len(t, ready.Chats, 1)

	send := ts.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", SendRequest{Text: "go"})
	require.Equal(t, http.StatusOK, send.StatusCode)

	// read until the chat is renamed; every frame before it must be a
	// message event for this chat
	var last *model.Message
	for {
		var frame EventFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Kind == session.EventChatRenamed {
			require.NotNil(t, frame.Chat)
			assert.Equal(t, "Streamed", frame.Chat.Title)
			break
		}
		assert.Equal(t, chatID, frame.ChatID)
		if frame.Message != nil && frame.Message.Role == model.RoleAssistant {
			last = frame.Message
		}
	}
	require.NotNil(t, last)
	assert.Equal(t, model.Content{model.Text{Text: "ab"}}, last.Content)
}

func TestEvents_ClosedOnShutdown(t *testing.T) {
	ts := newTestServer(t, gatewaytest.New("t"), Options{})

	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var ready EventFrame
	require.NoError(t, conn.ReadJSON(&ready))

	ts.srv.closeOnce.Do(func() { close(ts.srv.closing) })

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}

func TestEvents_RejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t, gatewaytest.New("t"), Options{})

	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/api/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestRun_ServesUntilCancelled(t *testing.T) {
	ts := newTestServer(t, gatewaytest.New("t"), Options{})
	srv := New(ts.orch, Options{Addr: "127.0.0.1:0", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, "http", srv.Name())
}

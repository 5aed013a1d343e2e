// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/export"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/telemetry"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// ============================================================================
// HEALTH
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime"`
	Chats     int              `json:"chats"`
	Providers []model.Provider `json:"providers"`
	Stats     Stats            `json:"stats"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.snapshot()
	providers := s.orch.Settings().ConfiguredProviders()
	if providers == nil {
		providers = []model.Provider{}
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.opts.Version,
		Uptime:    time.Since(stats.StartTime).Round(time.Second).String(),
		Chats:     len(s.orch.State().Chats()),
		Providers: providers,
		Stats:     stats,
	})
}

// ============================================================================
// MODELS
// ============================================================================

// ModelInfo is one catalog entry with its availability.
type ModelInfo struct {
	model.Model
	Configured    bool     `json:"configured"`
	Current       bool     `json:"current"`
	AcceptedFiles []string `json:"acceptedFiles"`
	InputPrice    float64  `json:"inputPricePerMillion,omitempty"`
	OutputPrice   float64  `json:"outputPricePerMillion,omitempty"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	settings := s.orch.Settings()
	current := settings.CurrentModel().Name
	out := lo.Map(model.Catalog(), func(m model.Model, _ int) ModelInfo {
		_, configured := settings.APIKey(m.Provider)
		info := ModelInfo{
			Model:         m,
			Configured:    configured,
			Current:       m.Name == current,
			AcceptedFiles: model.AcceptedFileTypes(m),
		}
		if info.AcceptedFiles == nil {
			info.AcceptedFiles = []string{}
		}
		million := model.IntPtr(1_000_000)
		info.InputPrice, _ = model.Price(model.RoleUser, m.Name, million)
		info.OutputPrice, _ = model.Price(model.RoleAssistant, m.Name, million)
		return info
	})
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

// ============================================================================
// COSTS
// ============================================================================

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	if s.opts.Tracker == nil {
		writeError(w, http.StatusNotFound, "cost tracking is disabled")
		return
	}
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}
	trends, err := s.opts.Tracker.GetTrends(days)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": s.opts.Tracker.GetCurrentSession(),
		"trends":  trends,
	})
}

// ============================================================================
// CHATS
// ============================================================================

// ChatSummary is a chat list entry.
type ChatSummary struct {
	model.Chat
	Bucket  string `json:"bucket"`
	Busy    bool   `json:"busy"`
	Current bool   `json:"current"`
}

type titleRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	state := s.orch.State()
	now := time.Now()
	current := state.CurrentChatID()
	out := lo.Map(state.Chats(), func(c model.Chat, _ int) ChatSummary {
		return ChatSummary{
			Chat:    c,
			Bucket:  util.DateBucket(c.CreatedAt, now),
			Busy:    s.orch.Busy(c.ID),
			Current: c.ID == current,
		}
	})
	writeJSON(w, http.StatusOK, map[string]any{"chats": out})
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := s.orch.NewChat(r.Context(), req.Title)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req titleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.orch.RenameChat(r.Context(), id, req.Title); err != nil {
		s.writeChatError(w, r, err)
		return
	}
	c, _, err := s.orch.Messages(r.Context(), id)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DeleteChat(r.Context(), r.PathValue("id")); err != nil {
		s.writeChatError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// MESSAGES
// ============================================================================

// ChatMessages is a chat with its messages in order.
type ChatMessages struct {
	Chat     model.Chat      `json:"chat"`
	Messages []model.Message `json:"messages"`
}

// SendRequest is the body of POST /api/chats/{id}/messages.
type SendRequest struct {
	Text        string       `json:"text"`
	Model       string       `json:"model,omitempty"`
	Grounding   bool         `json:"grounding,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a file sent along with a message. Data is base64 in JSON.
type Attachment struct {
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
	Data      []byte `json:"data"`
}

// handleGetMessages makes the chat current and returns its messages.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orch.SelectChat(r.Context(), id); err != nil {
		s.writeChatError(w, r, err)
		return
	}
	s.writeChatMessages(w, r, id)
}

// handleSend runs a full send and answers once the reply is complete.
// Progress is visible on /api/events while it runs.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req SendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	content, err := s.content(req)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}

	err = s.orch.Send(r.Context(), chat.SendRequest{
		ChatID:    id,
		Content:   content,
		Model:     req.Model,
		Grounding: req.Grounding,
	})
	s.stats.recordSend(err)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	s.writeChatMessages(w, r, id)
}

// content builds message content from a request, checking attachments
// against the model they will be sent to.
func (s *Server) content(req SendRequest) (model.Content, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, &chat.ValidationError{Field: "text", Message: "text is required"}
	}
	content := model.Content{model.Text{Text: req.Text}}
	if len(req.Attachments) == 0 {
		return content, nil
	}
	name := req.Model
	if name == "" {
		name = s.orch.Settings().CurrentModel().Name
	}
	m, ok := model.Lookup(name)
	if !ok {
		return nil, &chat.ValidationError{Field: "model", Message: fmt.Sprintf("unknown model %q", name)}
	}
	for i, a := range req.Attachments {
		if len(a.Data) == 0 {
			return nil, &chat.ValidationError{Field: fmt.Sprintf("attachments[%d]", i), Message: "attachment is empty"}
		}
		if !model.Accepts(m, a.Filename, a.MediaType) {
			return nil, &chat.ValidationError{
				Field:   fmt.Sprintf("attachments[%d]", i),
				Message: fmt.Sprintf("%s does not accept %s (%s)", m.Name, a.Filename, a.MediaType),
			}
		}
		content = append(content, model.PartFromFile(a.Filename, a.MediaType, a.Data))
	}
	return content, nil
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": s.orch.Cancel(r.PathValue("id"))})
}

func (s *Server) writeChatMessages(w http.ResponseWriter, r *http.Request, id string) {
	c, msgs, err := s.orch.Messages(r.Context(), id)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, ChatMessages{Chat: c, Messages: msgs})
}

// ============================================================================
// USAGE AND EXPORT
// ============================================================================

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.orch.Usage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse(usage))
}

type usageBody struct {
	telemetry.ChatUsage
	TotalTokens int    `json:"total_tokens"`
	CostDisplay string `json:"cost_display"`
}

func usageResponse(u telemetry.ChatUsage) usageBody {
	return usageBody{ChatUsage: u, TotalTokens: u.TotalTokens(), CostDisplay: util.FormatCost(u.Cost)}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "md"
	}
	exporter, err := export.ForFormat(format, s.opts.Export)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, msgs, err := s.orch.Messages(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	data, err := exporter.Export(export.New(c, msgs))
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	filename := "chat_" + c.ID + exporter.FileExtension()
	w.Header().Set("Content-Type", exporter.MimeType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

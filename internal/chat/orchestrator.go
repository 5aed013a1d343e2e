// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/gateway"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/session"
	"github.com/aljaroudi/t3lepathy/internal/settings"
	"github.com/aljaroudi/t3lepathy/internal/telemetry"
	"github.com/aljaroudi/t3lepathy/internal/util"
)

// Default batching of streamed text writes.
const (
	DefaultFlushInterval = 250 * time.Millisecond
	DefaultFlushBytes    = 1024
)

// Store is the persistence the orchestrator needs. *storage.Store
// implements it.
type Store interface {
	PutChat(ctx context.Context, chat model.Chat) error
	GetChat(ctx context.Context, id string) (model.Chat, error)
	ChatExists(ctx context.Context, id string) (bool, error)
	GetChats(ctx context.Context) ([]model.Chat, error)
	DeleteChatCascade(ctx context.Context, id string) (int, error)
	PutMessage(ctx context.Context, msg model.Message) error
	GetMessagesByChat(ctx context.Context, chatID string) ([]model.Message, error)
}

// Options tunes the orchestrator. Zero values take the defaults; a
// negative FlushInterval writes every chunk.
type Options struct {
	FlushInterval time.Duration
	FlushBytes    int

	// Tracker receives the usage of every reply. Optional.
	Tracker *telemetry.CostTracker

	// Now overrides the clock used for batching. Tests only.
	Now func() time.Time
}

// SendRequest is one user turn.
type SendRequest struct {
	ChatID  string
	Content model.Content
	// Model is a catalog name; empty uses the current model setting.
	Model     string
	Grounding bool
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator coordinates the store, the gateway and session state.
// It is safe for concurrent use; sends to the same chat run one at a time.
type Orchestrator struct {
	store    Store
	gateway  gateway.Gateway
	state    *session.State
	settings *settings.Service
	logger   *slog.Logger
	opts     Options

	locks *chatLocks

	mu       sync.Mutex
	inflight map[string]context.CancelFunc

	// liveMu orders reply updates against chat reloads so a chat opened
	// mid-reply shows the reply as the send holds it, not as last stored.
	liveMu sync.Mutex
	live   map[string]*turn
}

// New creates an orchestrator. logger may be nil.
func New(store Store, gw gateway.Gateway, state *session.State, svc *settings.Service, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case opts.FlushInterval == 0:
		opts.FlushInterval = DefaultFlushInterval
	case opts.FlushInterval < 0:
		opts.FlushInterval = 0
	}
	if opts.FlushBytes <= 0 {
		opts.FlushBytes = DefaultFlushBytes
	}
	return &Orchestrator{
		store:    store,
		gateway:  gw,
		state:    state,
		settings: svc,
		logger:   logger,
		opts:     opts,
		locks:    newChatLocks(),
		inflight: make(map[string]context.CancelFunc),
		live:     make(map[string]*turn),
	}
}

// State returns the session state the orchestrator drives.
func (o *Orchestrator) State() *session.State {
	return o.state
}

// Settings returns the settings service.
func (o *Orchestrator) Settings() *settings.Service {
	return o.settings
}

// Cancel stops the in-flight send of chatID. It reports whether one was
// running.
func (o *Orchestrator) Cancel(chatID string) bool {
	o.mu.Lock()
	cancel, ok := o.inflight[chatID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Busy reports whether a send to chatID is in flight.
func (o *Orchestrator) Busy(chatID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[chatID]
	return ok
}

func (o *Orchestrator) track(chatID string, cancel context.CancelFunc) func() {
	o.mu.Lock()
	o.inflight[chatID] = cancel
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.inflight, chatID)
		o.mu.Unlock()
		cancel()
	}
}

// =============================================================================
// SEND
// =============================================================================

type titleResult struct {
	title string
	err   error
}

// Send adds a user message to a chat and produces the assistant reply.
//
// Content whose first Text part is empty, or that has none, is ignored. An unknown model, a missing API
// key or an empty chat id fail with *ValidationError before anything is
// written. The chat is created when it does not exist. A failure of a
// model call is a *GatewayError; text streamed before the failure stays
// persisted. Cancelling ctx stops the stream the same way.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest) error {
	if strings.TrimSpace(req.ChatID) == "" {
		return &ValidationError{Field: "chatID", Message: "chat id is required"}
	}

	unlock, err := o.locks.lock(ctx, req.ChatID)
	if err != nil {
		return &GatewayError{Op: "send", Err: err}
	}
	defer unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer o.track(req.ChatID, cancel)()

	// model and key
	m, key, err := o.resolveModel(req.Model)
	if err != nil {
		return err
	}

	// nothing to say
	if text, _ := req.Content.FirstText(); text == "" {
		return nil
	}

	// earlier messages decide whether the chat still needs a title
	current := o.state.CurrentChatID() == req.ChatID
	var existing []model.Message
	if current {
		existing = o.state.Messages()
	} else {
		existing, err = o.store.GetMessagesByChat(ctx, req.ChatID)
		if err != nil {
			return fmt.Errorf("loading chat %s: %w", req.ChatID, err)
		}
	}
	needTitle := len(existing) == 0

	var titleModel model.Model
	var titleKey string
	if needTitle {
		titleModel = o.settings.TitleModel()
		k, ok := o.settings.APIKey(titleModel.Provider)
		if !ok {
			return &ValidationError{Field: "titleModel", Message: fmt.Sprintf("no %s API key for title model %s", titleModel.Provider, titleModel.Name)}
		}
		titleKey = k
	}

	// provision
	if err := o.provision(ctx, req.ChatID, current, existing); err != nil {
		return err
	}

	// title in the background
	var titleCh chan titleResult
	if needTitle {
		firstText, _ := req.Content.FirstText()
		titleCh = make(chan titleResult, 1)
		go func() {
			t, err := o.gateway.GenerateTitle(ctx, firstText, titleModel, titleKey)
			titleCh <- titleResult{title: t, err: err}
		}()
	}

	sendErr := o.reply(ctx, req, m, key, existing)

	// title
	if titleCh == nil {
		return sendErr
	}
	res := <-titleCh
	titleErr := res.err
	if titleErr == nil {
		titleErr = o.applyTitle(context.WithoutCancel(ctx), req.ChatID, res.title)
	}
	if titleErr != nil {
		o.logger.Warn("chat title failed", "chat", req.ChatID, "error", titleErr)
		if sendErr == nil {
			return &GatewayError{Op: "title", Err: titleErr}
		}
	}
	return sendErr
}

// resolveModel finds the catalog model and its provider key.
func (o *Orchestrator) resolveModel(name string) (model.Model, string, error) {
	var m model.Model
	if name == "" {
		m = o.settings.CurrentModel()
	} else {
		found, ok := model.Lookup(name)
		if !ok {
			return model.Model{}, "", &ValidationError{Field: "model", Message: fmt.Sprintf("unknown model %q", name)}
		}
		m = found
	}
	key, ok := o.settings.APIKey(m.Provider)
	if !ok {
		return model.Model{}, "", &ValidationError{Field: "apiKey", Message: fmt.Sprintf("no %s API key configured", m.Provider)}
	}
	return m, key, nil
}

// provision creates the chat when the store lacks it and makes it current.
func (o *Orchestrator) provision(ctx context.Context, chatID string, current bool, existing []model.Message) error {
	exists, err := o.store.ChatExists(ctx, chatID)
	if err != nil {
		return fmt.Errorf("checking chat %s: %w", chatID, err)
	}
	if !exists {
		c := model.NewChatWithID(chatID, model.DefaultChatTitle)
		if err := o.store.PutChat(ctx, c); err != nil {
			return fmt.Errorf("creating chat %s: %w", chatID, err)
		}
		o.state.NewChat(c)
		o.logger.Debug("chat provisioned", "chat", chatID)
		return nil
	}
	if !current {
		o.state.SetCurrentChat(chatID, existing)
	}
	return nil
}

// reply writes the user message and the placeholder, then calls the model.
// earlier holds the chat's messages before this turn.
func (o *Orchestrator) reply(ctx context.Context, req SendRequest, m model.Model, key string, earlier []model.Message) error {
	start := time.Now()

	t := &turn{o: o, chatID: req.ChatID}
	o.liveMu.Lock()
	o.live[req.ChatID] = t
	o.liveMu.Unlock()
	defer func() {
		o.liveMu.Lock()
		delete(o.live, req.ChatID)
		o.liveMu.Unlock()
	}()

	// user message
	t.user = model.NewUserMessage(req.ChatID, m.Name, req.Content...)
	if err := o.store.PutMessage(ctx, t.user.Clone()); err != nil {
		return fmt.Errorf("saving user message: %w", err)
	}
	t.update(func() *model.Message {
		t.userShown = true
		return &t.user
	})

	// context
	history, err := BuildHistory(append(model.CloneMessages(earlier), t.user))
	if err != nil {
		return err
	}

	// placeholder
	t.reply = model.NewAssistantPlaceholder(req.ChatID, m.Name)
	if err := o.store.PutMessage(ctx, t.reply.Clone()); err != nil {
		return fmt.Errorf("saving reply placeholder: %w", err)
	}
	t.update(func() *model.Message {
		t.replyShown = true
		return &t.reply
	})

	// image or text
	prompt := req.Content.PlainText()
	wantImage, err := o.gateway.ClassifyImageIntent(ctx, prompt, m, key)
	if err != nil {
		return &GatewayError{Op: "classify", Err: err}
	}
	if wantImage {
		return t.image(ctx, prompt, key)
	}

	err = t.text(ctx, gateway.StreamRequest{
		Model:        m,
		Key:          key,
		SystemPrompt: o.settings.SystemPrompt(),
		History:      history,
		MaxSentences: o.settings.ResponseLength().MaxSentences(),
		Grounding:    req.Grounding,
	})
	o.logger.Info("reply finished",
		"chat", req.ChatID,
		"model", m.Name,
		"bytes", t.bytes,
		"writes", t.writes,
		"duration", time.Since(start),
		"error", err,
	)
	if err == nil && t.usage != nil && o.opts.Tracker != nil {
		o.opts.Tracker.Record(req.ChatID, m.Name, t.usage.InputTokens, t.usage.OutputTokens, time.Since(start))
	}
	return err
}

// applyTitle normalizes a generated title and stores it.
func (o *Orchestrator) applyTitle(ctx context.Context, chatID, raw string) error {
	title := util.NormalizeTitle(raw)
	if title == "" {
		return errors.New("model returned an empty title")
	}
	c, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading chat for rename: %w", err)
	}
	c.Title = title
	if err := o.store.PutChat(ctx, c); err != nil {
		return fmt.Errorf("saving title: %w", err)
	}
	if err := o.state.RenameChat(chatID, title); err != nil {
		o.logger.Debug("titled chat not in state", "chat", chatID)
	}
	return nil
}

// =============================================================================
// TURN
// =============================================================================

// turn is one reply being produced. It owns the authoritative copies of
// the user message and the reply. State gets a copy of each after every
// change while the chat is current; a chat reloaded mid-reply gets them
// laid over its stored messages.
type turn struct {
	o      *Orchestrator
	chatID string

	// guarded by o.liveMu once shown
	user       model.Message
	reply      model.Message
	userShown  bool
	replyShown bool

	usage  *gateway.Usage
	bytes  int
	writes int
}

// update applies fn under the live lock and copies the message it returns
// into state. The message replaces its older copy, or is appended when
// state has none; nothing happens when the chat is not current.
func (t *turn) update(fn func() *model.Message) {
	t.o.liveMu.Lock()
	defer t.o.liveMu.Unlock()
	msg := fn()
	s := t.o.state
	if _, err := s.ReplaceMessage(*msg); err == nil {
		return
	}
	if _, err := s.AppendMessage(*msg); err != nil && !errors.Is(err, session.ErrNotFound) {
		t.o.logger.Warn("state update failed", "chat", t.chatID, "error", err)
	}
}

// overlay lays the shown messages of the turn over msgs, the chat as
// stored. Caller holds o.liveMu.
func (t *turn) overlay(msgs []model.Message) []model.Message {
	var shown []model.Message
	if t.userShown {
		shown = append(shown, t.user)
	}
	if t.replyShown {
		shown = append(shown, t.reply)
	}
	for _, m := range shown {
		i := slices.IndexFunc(msgs, func(x model.Message) bool { return x.ID == m.ID })
		if i >= 0 {
			msgs[i] = m.Clone()
		} else {
			msgs = append(msgs, m.Clone())
		}
	}
	return msgs
}

func (t *turn) image(ctx context.Context, prompt, key string) error {
	img, err := t.o.gateway.GenerateImage(ctx, prompt, key)
	if err != nil {
		return &GatewayError{Op: "image", Err: err}
	}
	part := model.Image{ImageDataURI: img.DataURI(), MediaType: img.MediaType}
	stored := t.reply.Clone()
	stored.Content = append(stored.Content, part)
	if err := t.o.store.PutMessage(ctx, stored); err != nil {
		return fmt.Errorf("saving image reply: %w", err)
	}
	t.update(func() *model.Message {
		t.reply.Content = append(t.reply.Content, part)
		return &t.reply
	})
	return nil
}

func (t *turn) text(ctx context.Context, req gateway.StreamRequest) error {
	partIdx := len(t.reply.Content)
	stored := t.reply.Clone()
	stored.Content = append(stored.Content, model.Text{})
	if err := t.o.store.PutMessage(ctx, stored); err != nil {
		return fmt.Errorf("saving reply: %w", err)
	}
	t.update(func() *model.Message {
		t.reply.Content = append(t.reply.Content, model.Text{})
		return &t.reply
	})

	// final writes must land even after ctx is cancelled
	persistCtx := context.WithoutCancel(ctx)
	f := newFlusher(t.o.opts, t.o.store.PutMessage)
	defer func() { t.writes = f.writes }()

	stream, err := t.o.gateway.StreamText(ctx, req)
	if err != nil {
		return &GatewayError{Op: "stream", Err: err}
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ferr := f.flush(persistCtx); ferr != nil {
				t.o.logger.Error("saving partial reply failed", "chat", t.chatID, "error", ferr)
			}
			return &GatewayError{Op: "stream", Err: err}
		}

		if chunk.Usage != nil {
			if err := t.recordUsage(persistCtx, f, chunk.Usage); err != nil {
				return err
			}
		}
		if chunk.Usage != nil && chunk.Text == "" {
			continue
		}

		latest, err := t.appendText(partIdx, chunk.Text)
		if err != nil {
			return err
		}
		if err := f.add(persistCtx, latest, len(chunk.Text)); err != nil {
			return fmt.Errorf("saving reply: %w", err)
		}
	}

	if err := f.flush(persistCtx); err != nil {
		return fmt.Errorf("saving reply: %w", err)
	}
	return nil
}

// appendText concatenates text onto the reply's text part and returns a
// copy of the reply.
func (t *turn) appendText(partIdx int, text string) (model.Message, error) {
	if partIdx < 0 || partIdx >= len(t.reply.Content) {
		return model.Message{}, fmt.Errorf("%w: part %d", ErrIndexOutOfRange, partIdx)
	}
	if _, ok := t.reply.Content[partIdx].(model.Text); !ok {
		return model.Message{}, fmt.Errorf("%w: part %d", session.ErrNotText, partIdx)
	}
	var latest model.Message
	t.update(func() *model.Message {
		tp := t.reply.Content[partIdx].(model.Text)
		tp.Text += text
		t.reply.Content[partIdx] = tp
		latest = t.reply.Clone()
		return &t.reply
	})
	t.bytes += len(text)
	return latest, nil
}

// recordUsage stores input tokens on the user message and output tokens
// on the reply.
func (t *turn) recordUsage(ctx context.Context, f *flusher, u *gateway.Usage) error {
	t.usage = u
	if u.InputTokens != nil {
		stored := t.user.Clone()
		stored.Tokens = model.IntPtr(*u.InputTokens)
		if err := t.o.store.PutMessage(ctx, stored); err != nil {
			return fmt.Errorf("saving input tokens: %w", err)
		}
		t.update(func() *model.Message {
			t.user.Tokens = model.IntPtr(*u.InputTokens)
			return &t.user
		})
	}
	if u.OutputTokens != nil {
		var latest model.Message
		t.update(func() *model.Message {
			t.reply.Tokens = model.IntPtr(*u.OutputTokens)
			latest = t.reply.Clone()
			return &t.reply
		})
		f.latest = latest
		f.dirty = true
		if err := f.flush(ctx); err != nil {
			return fmt.Errorf("saving output tokens: %w", err)
		}
	}
	return nil
}

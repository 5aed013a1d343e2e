// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/session"
	"github.com/aljaroudi/t3lepathy/internal/storage"
	"github.com/aljaroudi/t3lepathy/internal/telemetry"
)

// =============================================================================
// CHAT LIFECYCLE
// =============================================================================

// Load fills state with the stored chats, newest first, and selects the
// newest one. An empty store gets a fresh "New chat".
func (o *Orchestrator) Load(ctx context.Context) error {
	chats, err := o.store.GetChats(ctx)
	if err != nil {
		return fmt.Errorf("loading chats: %w", err)
	}
	o.state.SetChats(chats)
	o.logger.Debug("chats loaded", "count", len(chats))

	if len(chats) == 0 {
		_, err := o.NewChat(ctx, model.DefaultChatTitle)
		return err
	}
	return o.SelectChat(ctx, chats[0].ID)
}

// NewChat creates and selects a chat. An empty title becomes "New chat".
func (o *Orchestrator) NewChat(ctx context.Context, title string) (model.Chat, error) {
	c := model.NewChat(strings.TrimSpace(title))
	if err := o.store.PutChat(ctx, c); err != nil {
		return model.Chat{}, fmt.Errorf("creating chat: %w", err)
	}
	return o.state.NewChat(c), nil
}

// SelectChat makes id the current chat with its stored messages, and any
// reply still being produced for it as it stands now.
func (o *Orchestrator) SelectChat(ctx context.Context, id string) error {
	if _, err := o.store.GetChat(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &NotFoundError{Kind: "chat", ID: id}
		}
		return fmt.Errorf("loading chat %s: %w", id, err)
	}
	msgs, err := o.store.GetMessagesByChat(ctx, id)
	if err != nil {
		return fmt.Errorf("loading messages of %s: %w", id, err)
	}

	// a reply in flight is ahead of the store
	o.liveMu.Lock()
	defer o.liveMu.Unlock()
	if t, ok := o.live[id]; ok {
		msgs = t.overlay(msgs)
	}
	o.state.SetCurrentChat(id, msgs)
	return nil
}

// RenameChat changes a chat title in state, then in the store.
func (o *Orchestrator) RenameChat(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if err := o.state.RenameChat(id, title); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return &NotFoundError{Kind: "chat", ID: id}
		}
		return err
	}
	c, err := o.store.GetChat(ctx, id)
	if err != nil {
		return fmt.Errorf("loading chat %s: %w", id, err)
	}
	c.Title = title
	if err := o.store.PutChat(ctx, c); err != nil {
		return fmt.Errorf("renaming chat %s: %w", id, err)
	}
	return nil
}

// DeleteChat removes a chat and its messages. An in-flight send to it is
// cancelled first. When the current chat is deleted the chat that took its
// place in the list is selected, or a new one is created.
func (o *Orchestrator) DeleteChat(ctx context.Context, id string) error {
	pos := -1
	for i, c := range o.state.Chats() {
		if c.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return &NotFoundError{Kind: "chat", ID: id}
	}
	wasCurrent := o.state.CurrentChatID() == id

	// a running send flushes on its way out; wait for it so its writes
	// cannot land after the delete
	o.Cancel(id)
	unlock, err := o.locks.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	n, err := o.store.DeleteChatCascade(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}
	if err := o.state.DeleteChat(id); err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}
	o.logger.Info("chat deleted", "chat", id, "messages", n)

	if !wasCurrent && o.state.CurrentChatID() != "" {
		return nil
	}
	chats := o.state.Chats()
	if pos < len(chats) {
		return o.SelectChat(ctx, chats[pos].ID)
	}
	if len(chats) > 0 {
		return o.SelectChat(ctx, chats[len(chats)-1].ID)
	}
	_, err = o.NewChat(ctx, model.DefaultChatTitle)
	return err
}

// Usage prices the token usage recorded on a chat's messages.
func (o *Orchestrator) Usage(ctx context.Context, chatID string) (telemetry.ChatUsage, error) {
	if _, err := o.store.GetChat(ctx, chatID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return telemetry.ChatUsage{}, &NotFoundError{Kind: "chat", ID: chatID}
		}
		return telemetry.ChatUsage{}, err
	}
	msgs, err := o.store.GetMessagesByChat(ctx, chatID)
	if err != nil {
		return telemetry.ChatUsage{}, fmt.Errorf("loading messages of %s: %w", chatID, err)
	}
	return telemetry.Summarize(chatID, msgs), nil
}

// Messages returns the stored messages of a chat without selecting it.
func (o *Orchestrator) Messages(ctx context.Context, chatID string) (model.Chat, []model.Message, error) {
	c, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Chat{}, nil, &NotFoundError{Kind: "chat", ID: chatID}
		}
		return model.Chat{}, nil, err
	}
	msgs, err := o.store.GetMessagesByChat(ctx, chatID)
	if err != nil {
		return model.Chat{}, nil, fmt.Errorf("loading messages of %s: %w", chatID, err)
	}
	return c, msgs, nil
}

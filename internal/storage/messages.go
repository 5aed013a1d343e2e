// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// PutMessage inserts or replaces a message record. The chat must exist.
// The record is encoded before the call returns, so later changes to msg
// never reach the store.
func (s *Store) PutMessage(ctx context.Context, msg model.Message) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if !msg.Role.Valid() {
		return fmt.Errorf("invalid message role %q", msg.Role)
	}
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("failed to encode message content: %w", err)
	}

	var tokens sql.NullInt64
	if msg.Tokens != nil {
		tokens = sql.NullInt64{Int64: int64(*msg.Tokens), Valid: true}
	}
	var modelName sql.NullString
	if msg.Model != nil {
		modelName = sql.NullString{String: *msg.Model, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, role, date, tokens, model, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			date = excluded.date,
			tokens = excluded.tokens,
			model = excluded.model,
			content = excluded.content
		WHERE messages.chat_id = excluded.chat_id`,
		msg.ID, msg.ChatID, string(msg.Role), msg.Date.UnixNano(), tokens, modelName, string(content))
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", ErrNoChat, msg.ChatID)
	}
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetMessage loads one message. Returns ErrNotFound if it does not exist.
func (s *Store) GetMessage(ctx context.Context, id string) (model.Message, error) {
	db, err := s.conn()
	if err != nil {
		return model.Message{}, err
	}
	row := db.QueryRowContext(ctx, `
		SELECT id, chat_id, role, date, tokens, model, content FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to load message: %w", err)
	}
	return msg, nil
}

// GetMessages returns every stored message, oldest first.
func (s *Store) GetMessages(ctx context.Context) ([]model.Message, error) {
	return s.queryMessages(ctx, `
		SELECT id, chat_id, role, date, tokens, model, content FROM messages
		ORDER BY date ASC, rowid ASC`)
}

// GetMessagesByChat returns the messages of one chat, oldest first.
// This is the range query over the chat_id index.
func (s *Store) GetMessagesByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	return s.queryMessages(ctx, `
		SELECT id, chat_id, role, date, tokens, model, content FROM messages
		WHERE chat_id = ? ORDER BY date ASC, rowid ASC`, chatID)
}

// CountMessages returns how many messages a chat owns.
func (s *Store) CountMessages(ctx context.Context, chatID string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages WHERE chat_id = ?`, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// DeleteMessage removes one message. Returns ErrNotFound if it does not exist.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]model.Message, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func scanMessage(row scanner) (model.Message, error) {
	var (
		msg       model.Message
		role      string
		date      int64
		tokens    sql.NullInt64
		modelName sql.NullString
		content   string
	)
	if err := row.Scan(&msg.ID, &msg.ChatID, &role, &date, &tokens, &modelName, &content); err != nil {
		return model.Message{}, err
	}
	msg.Role = model.Role(role)
	msg.Date = time.Unix(0, date).UTC()
	if tokens.Valid {
		msg.Tokens = model.IntPtr(int(tokens.Int64))
	}
	if modelName.Valid {
		name := modelName.String
		msg.Model = &name
	}
	if err := json.Unmarshal([]byte(content), &msg.Content); err != nil {
		return model.Message{}, fmt.Errorf("failed to decode content of %s: %w", msg.ID, err)
	}
	return msg, nil
}

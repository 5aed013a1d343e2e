// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// PutChat inserts or replaces a chat record.
func (s *Store) PutChat(ctx context.Context, chat model.Chat) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO chats (id, title, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, created_at = excluded.created_at`,
		chat.ID, chat.Title, chat.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	return nil
}

// GetChat loads one chat. Returns ErrNotFound if it does not exist.
func (s *Store) GetChat(ctx context.Context, id string) (model.Chat, error) {
	db, err := s.conn()
	if err != nil {
		return model.Chat{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT id, title, created_at FROM chats WHERE id = ?`, id)
	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Chat{}, ErrNotFound
	}
	if err != nil {
		return model.Chat{}, fmt.Errorf("failed to load chat: %w", err)
	}
	return chat, nil
}

// ChatExists reports whether a chat with id is stored.
func (s *Store) ChatExists(ctx context.Context, id string) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM chats WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check chat: %w", err)
	}
	return n > 0, nil
}

// GetChats returns every chat, most recently created first.
func (s *Store) GetChats(ctx context.Context) ([]model.Chat, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, title, created_at FROM chats ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := []model.Chat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// DeleteChat removes the chat record only. Messages are removed by the
// foreign key cascade; use DeleteChatCascade to count them.
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChatCascade deletes every message of the chat through the chat_id
// index, then the chat itself, in one transaction. It returns the number
// of messages removed. A chat with no messages is fine.
func (s *Store) DeleteChatCascade(ctx context.Context, id string) (int, error) {
	deleted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM messages WHERE chat_id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to list chat messages: %w", err)
		}
		var ids []string
		for rows.Next() {
			var msgID string
			if err := rows.Scan(&msgID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to read message id: %w", err)
			}
			ids = append(ids, msgID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, msgID := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, msgID); err != nil {
				return fmt.Errorf("failed to delete message %s: %w", msgID, err)
			}
			deleted++
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete chat: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// SearchChats returns chats whose title or message text contains query,
// most recent first.
func (s *Store) SearchChats(ctx context.Context, query string) ([]model.Chat, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at FROM chats c
		WHERE c.title LIKE ? ESCAPE '\'
		   OR EXISTS (SELECT 1 FROM messages m WHERE m.chat_id = c.id AND m.content LIKE ? ESCAPE '\')
		ORDER BY c.created_at DESC`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search chats: %w", err)
	}
	defer rows.Close()

	var chats []model.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (model.Chat, error) {
	var (
		chat    model.Chat
		created int64
	)
	if err := row.Scan(&chat.ID, &chat.Title, &created); err != nil {
		return model.Chat{}, err
	}
	chat.CreatedAt = time.Unix(0, created).UTC()
	return chat, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

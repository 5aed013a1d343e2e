// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "t3.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func chatAt(id string, ts time.Time) model.Chat {
	return model.Chat{ID: id, Title: model.DefaultChatTitle, CreatedAt: ts.UTC()}
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestStore_ChatRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chat := model.NewChat("")
	require.NoError(t, s.PutChat(ctx, chat))

	got, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, chat, got)

	chat.Title = "Renamed"
	require.NoError(t, s.PutChat(ctx, chat))
	got, err = s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	ok, err := s.ChatExists(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ChatExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_GetChatMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetChat(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetChatsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutChat(ctx, chatAt("a", base)))
	require.NoError(t, s.PutChat(ctx, chatAt("c", base.Add(2*time.Hour))))
	require.NoError(t, s.PutChat(ctx, chatAt("b", base.Add(time.Hour))))

	chats, err := s.GetChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{chats[0].ID, chats[1].ID, chats[2].ID})
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestStore_MessageRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	chat := model.NewChat("")
	require.NoError(t, s.PutChat(ctx, chat))

	user := model.NewUserMessage(chat.ID, "gpt-4o", model.Text{Text: "hello"},
		model.Image{ImageDataURI: "data:image/png;base64,AAAA", MediaType: "image/png"})
	require.NoError(t, s.PutMessage(ctx, user))

	got, err := s.GetMessage(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	// Placeholder is stored, then grows a part and tokens.
	reply := model.NewAssistantPlaceholder(chat.ID, "gpt-4o")
	require.NoError(t, s.PutMessage(ctx, reply))
	got, err = s.GetMessage(ctx, reply.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Tokens)
	assert.Empty(t, got.Content)

	reply.Content = append(reply.Content, model.Text{Text: "hi there"})
	reply.Tokens = model.IntPtr(12)
	require.NoError(t, s.PutMessage(ctx, reply))
	got, err = s.GetMessage(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, reply, got)
}

func TestStore_PutMessageUnknownChat(t *testing.T) {
	s := openTestStore(t)
	msg := model.NewUserMessage("ghost", "gpt-4o", model.Text{Text: "x"})
	err := s.PutMessage(context.Background(), msg)
	assert.True(t, errors.Is(err, ErrNoChat), "err = %v", err)
}

func TestStore_PutMessageCopiesContent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	chat := model.NewChat("")
	require.NoError(t, s.PutChat(ctx, chat))

	msg := model.NewUserMessage(chat.ID, "", model.Text{Text: "before"})
	require.NoError(t, s.PutMessage(ctx, msg))
	msg.Content[0] = model.Text{Text: "after"}

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	text, _ := got.Content.FirstText()
	assert.Equal(t, "before", text)
}

func TestStore_GetMessagesByChatOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutChat(ctx, chatAt("one", base)))
	require.NoError(t, s.PutChat(ctx, chatAt("two", base)))

	var want []string
	for i := 0; i < 5; i++ {
		m := model.NewUserMessage("one", "", model.Text{Text: "m"})
		// Two messages share a timestamp; insertion order breaks the tie.
		m.Date = base.Add(time.Duration(i/2) * time.Second)
		require.NoError(t, s.PutMessage(ctx, m))
		want = append(want, m.ID)
	}
	other := model.NewUserMessage("two", "", model.Text{Text: "other"})
	require.NoError(t, s.PutMessage(ctx, other))

	first, err := s.GetMessagesByChat(ctx, "one")
	require.NoError(t, err)
	second, err := s.GetMessagesByChat(ctx, "one")
	require.NoError(t, err)

	ids := make([]string, len(first))
	for i, m := range first {
		ids[i] = m.ID
	}
	assert.Equal(t, want, ids)
	assert.Equal(t, first, second)

	all, err := s.GetMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	n, err := s.CountMessages(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_DeleteMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	chat := model.NewChat("")
	require.NoError(t, s.PutChat(ctx, chat))
	msg := model.NewUserMessage(chat.ID, "", model.Text{Text: "x"})
	require.NoError(t, s.PutMessage(ctx, msg))

	require.NoError(t, s.DeleteMessage(ctx, msg.ID))
	assert.ErrorIs(t, s.DeleteMessage(ctx, msg.ID), ErrNotFound)
	_, err := s.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// CASCADE DELETE TESTS
// =============================================================================

func TestStore_DeleteChatCascade(t *testing.T) {
	tests := []struct {
		name     string
		messages int
	}{
		{"no messages", 0},
		{"one message", 1},
		{"many messages", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			ctx := context.Background()

			chat := model.NewChat("")
			keep := model.NewChat("keep")
			require.NoError(t, s.PutChat(ctx, chat))
			require.NoError(t, s.PutChat(ctx, keep))
			for i := 0; i < tt.messages; i++ {
				require.NoError(t, s.PutMessage(ctx, model.NewUserMessage(chat.ID, "", model.Text{Text: "x"})))
			}
			kept := model.NewUserMessage(keep.ID, "", model.Text{Text: "stay"})
			require.NoError(t, s.PutMessage(ctx, kept))

			n, err := s.DeleteChatCascade(ctx, chat.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.messages, n)

			_, err = s.GetChat(ctx, chat.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			left, err := s.GetMessagesByChat(ctx, chat.ID)
			require.NoError(t, err)
			assert.Empty(t, left)

			others, err := s.GetMessagesByChat(ctx, keep.ID)
			require.NoError(t, err)
			assert.Len(t, others, 1)
		})
	}
}

func TestStore_DeleteChatCascadeMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.DeleteChatCascade(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteChatForeignKeyCascade(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	chat := model.NewChat("")
	require.NoError(t, s.PutChat(ctx, chat))
	require.NoError(t, s.PutMessage(ctx, model.NewUserMessage(chat.ID, "", model.Text{Text: "x"})))

	require.NoError(t, s.DeleteChat(ctx, chat.ID))
	all, err := s.GetMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

// =============================================================================
// SEARCH AND SETTINGS TESTS
// =============================================================================

func TestStore_SearchChats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pasta := model.NewChat("Pasta recipes")
	go1 := model.NewChat("Untitled")
	other := model.NewChat("Weather")
	for _, c := range []model.Chat{pasta, go1, other} {
		require.NoError(t, s.PutChat(ctx, c))
	}
	require.NoError(t, s.PutMessage(ctx, model.NewUserMessage(go1.ID, "", model.Text{Text: "how do goroutines work"})))

	found, err := s.SearchChats(ctx, "pasta")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, pasta.ID, found[0].ID)

	found, err = s.SearchChats(ctx, "goroutine")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, go1.ID, found[0].ID)

	found, err = s.SearchChats(ctx, "100%")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestStore_KV(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "responseLength")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "responseLength", []byte(`"short"`)))
	require.NoError(t, s.Set(ctx, "currentModel", []byte(`"gpt-4o"`)))
	require.NoError(t, s.Set(ctx, "responseLength", []byte(`"open"`)))

	v, err := s.Get(ctx, "responseLength")
	require.NoError(t, err)
	assert.Equal(t, `"open"`, string(v))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"currentModel", "responseLength"}, keys)

	require.NoError(t, s.Delete(ctx, "currentModel"))
	require.NoError(t, s.Delete(ctx, "currentModel"))
	keys, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"responseLength"}, keys)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t3.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	chat := model.NewChat("persisted")
	require.NoError(t, s.PutChat(ctx, chat))
	require.NoError(t, s.Close())

	_, err = s.GetChat(ctx, chat.ID)
	assert.ErrorIs(t, err, ErrClosed)

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Title)
}

func TestStore_CloseDuringWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	chat := model.NewChat("busy")
	require.NoError(t, s.PutChat(ctx, chat))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := model.NewUserMessage(chat.ID, "", model.Text{Text: "hi"})
			errs <- s.PutMessage(ctx, msg)
		}()
	}
	require.NoError(t, s.Close())
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, ErrClosed) && !isClosed(err) {
			t.Errorf("write during close: %v", err)
		}
	}
	require.NoError(t, s.Close(), "second Close")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// =============================================================================
// FLUSHER TESTS
// =============================================================================

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func withText(s string) model.Message {
	return model.Message{ID: "m", ChatID: "c", Role: model.RoleAssistant, Content: model.Content{model.Text{Text: s}}}
}

func TestFlusher_BatchesBySizeAndTime(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(0, 0)}
	var written []string
	f := newFlusher(Options{FlushInterval: 100 * time.Millisecond, FlushBytes: 10, Now: clock.now},
		func(_ context.Context, m model.Message) error {
			written = append(written, m.Content.PlainText())
			return nil
		})

	steps := []struct {
		text    string
		advance time.Duration
		writes  int
	}{
		{"abc", 0, 0},                    // 3 bytes
		{"defghijk", 0, 1},               // 11 bytes, size threshold
		{"l", 50 * time.Millisecond, 1},  // 1 byte, 50ms
		{"m", 60 * time.Millisecond, 2},  // 110ms since last write
		{"", 0, 2},                       // empty chunks just mark dirty
		{"n", 200 * time.Millisecond, 3}, // time threshold
	}
	acc := ""
	for i, s := range steps {
		acc += s.text
		clock.advance(s.advance)
		if err := f.add(ctx, withText(acc), len(s.text)); err != nil {
			t.Fatalf("step %d: add() error = %v", i, err)
		}
		if len(written) != s.writes {
			t.Errorf("step %d: %d writes, want %d", i, len(written), s.writes)
		}
	}

	want := []string{"abcdefghijk", "abcdefghijklm", "abcdefghijklmn"}
	for i, w := range want {
		if written[i] != w {
			t.Errorf("write %d = %q, want %q", i, written[i], w)
		}
	}

	// nothing pending: flush is a no-op
	if err := f.flush(ctx); err != nil {
		t.Fatalf("flush() error = %v", err)
	}
	if len(written) != 3 || f.writes != 3 {
		t.Errorf("flush wrote a clean snapshot: %d writes", len(written))
	}
}

func TestFlusher_ZeroIntervalWritesEveryChunk(t *testing.T) {
	ctx := context.Background()
	n := 0
	f := newFlusher(Options{}, func(context.Context, model.Message) error { n++; return nil })
	for _, s := range []string{"a", "", "b"} {
		if err := f.add(ctx, withText(s), len(s)); err != nil {
			t.Fatal(err)
		}
	}
	if n != 3 {
		t.Errorf("writes = %d, want 3", n)
	}
}

func TestFlusher_WriteErrorKeepsSnapshotDirty(t *testing.T) {
	ctx := context.Background()
	fail := true
	var last string
	f := newFlusher(Options{}, func(_ context.Context, m model.Message) error {
		if fail {
			return errors.New("disk full")
		}
		last = m.Content.PlainText()
		return nil
	})

	if err := f.add(ctx, withText("abc"), 3); err == nil {
		t.Fatal("expected write error")
	}
	fail = false
	if err := f.flush(ctx); err != nil {
		t.Fatalf("flush() error = %v", err)
	}
	if last != "abc" {
		t.Errorf("retried write = %q, want %q", last, "abc")
	}
}

func TestFlusher_WritesCopies(t *testing.T) {
	ctx := context.Background()
	var got model.Message
	f := newFlusher(Options{}, func(_ context.Context, m model.Message) error { got = m; return nil })

	msg := withText("abc")
	if err := f.add(ctx, msg, 3); err != nil {
		t.Fatal(err)
	}
	msg.Content[0] = model.Text{Text: "changed"}
	if got.Content.PlainText() != "abc" {
		t.Errorf("written message aliases the caller's content: %q", got.Content.PlainText())
	}
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestBuildHistory(t *testing.T) {
	img := model.Image{ImageDataURI: "data:image/png;base64,aGk=", MediaType: "image/png"}
	file := model.File{DataURI: "data:text/plain;base64,aGk=", MediaType: "text/plain", Filename: "a.txt"}

	user := model.Message{ID: "u", Role: model.RoleUser, Content: model.Content{model.Text{Text: "look"}, img, file}}
	reply := model.Message{ID: "a", Role: model.RoleAssistant, Content: model.Content{img, model.Text{Text: "here"}, file, img}}
	imageOnly := model.Message{ID: "i", Role: model.RoleAssistant, Content: model.Content{img}}
	input := []model.Message{user, reply, imageOnly}

	got, err := BuildHistory(input)
	if err != nil {
		t.Fatalf("BuildHistory() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, id := range []string{"u", "a", "i"} {
		if got[i].ID != id {
			t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
	if len(got[0].Content) != 3 {
		t.Errorf("user content stripped: %v", got[0].Content)
	}
	if len(got[1].Content) != 2 || got[1].Content[0] != (model.Text{Text: "here"}) || got[1].Content[1] != file {
		t.Errorf("assistant content = %v", got[1].Content)
	}
	if len(got[2].Content) != 0 {
		t.Errorf("image-only reply kept %v", got[2].Content)
	}

	// input untouched
	if len(reply.Content) != 4 || input[1].Content[0] != img {
		t.Error("BuildHistory modified its input")
	}
}

type bogusPart struct{ model.Text }

func TestBuildHistory_UnknownPart(t *testing.T) {
	msgs := []model.Message{{ID: "a", Role: model.RoleAssistant, Content: model.Content{bogusPart{}}}}
	_, err := BuildHistory(msgs)
	var unknown *model.UnknownPartError
	if !errors.As(err, &unknown) {
		t.Errorf("err = %v, want *model.UnknownPartError", err)
	}
}

// =============================================================================
// LOCK TESTS
// =============================================================================

func TestChatLocks(t *testing.T) {
	l := newChatLocks()
	ctx := context.Background()

	unlock, err := l.lock(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}

	// other keys are independent
	unlockB, err := l.lock(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	unlockB()

	// same key waits until ctx gives up
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.lock(short, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second lock err = %v, want deadline exceeded", err)
	}

	acquired := make(chan func())
	go func() {
		u, _ := l.lock(ctx, "a")
		acquired <- u
	}()
	unlock()
	unlock() // idempotent
	(<-acquired)()

	if n := l.size(); n != 0 {
		t.Errorf("size() = %d after all unlocks, want 0", n)
	}
}

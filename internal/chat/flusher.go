// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

// =============================================================================
// FLUSHER
// =============================================================================

// flusher batches store writes of a streaming reply. Every chunk updates
// the pending snapshot; the snapshot is written once FlushInterval has
// passed since the last write or FlushBytes of text have accumulated.
// A zero interval writes on every chunk.
//
// Not safe for concurrent use; one send owns it.
type flusher struct {
	interval time.Duration
	maxBytes int
	now      func() time.Time
	write    func(ctx context.Context, msg model.Message) error

	latest    model.Message
	dirty     bool
	pending   int
	lastFlush time.Time
	writes    int
}

func newFlusher(opts Options, write func(context.Context, model.Message) error) *flusher {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &flusher{
		interval:  opts.FlushInterval,
		maxBytes:  opts.FlushBytes,
		now:       now,
		write:     write,
		lastFlush: now(),
	}
}

// add records the latest state of the message after n bytes of new text
// and writes it when a threshold is reached.
func (f *flusher) add(ctx context.Context, msg model.Message, n int) error {
	f.latest = msg
	f.dirty = true
	f.pending += n
	if f.shouldFlush() {
		return f.flush(ctx)
	}
	return nil
}

func (f *flusher) shouldFlush() bool {
	if !f.dirty {
		return false
	}
	if f.interval <= 0 {
		return true
	}
	if f.maxBytes > 0 && f.pending >= f.maxBytes {
		return true
	}
	return f.now().Sub(f.lastFlush) >= f.interval
}

// flush writes the pending snapshot, if any.
func (f *flusher) flush(ctx context.Context) error {
	if !f.dirty {
		return nil
	}
	if err := f.write(ctx, f.latest.Clone()); err != nil {
		return err
	}
	f.dirty = false
	f.pending = 0
	f.lastFlush = f.now()
	f.writes++
	return nil
}

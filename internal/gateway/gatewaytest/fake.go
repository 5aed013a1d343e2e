// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gatewaytest provides a scripted gateway for tests.
package gatewaytest

import (
	"context"
	"io"
	"sync"

	"github.com/aljaroudi/t3lepathy/internal/gateway"
	"github.com/aljaroudi/t3lepathy/internal/model"
)

// Fake is a scripted gateway.Gateway. Set the exported fields before use;
// the counters are safe to read after the calls return.
type Fake struct {
	// Stream script
	Chunks    []gateway.Chunk
	StreamErr error // returned after Chunks instead of io.EOF
	StartErr  error // returned by StreamText
	Hold      bool  // after Chunks, block until the context ends

	// Feed, when set, supplies chunks after Chunks one at a time. The
	// stream ends when it is closed.
	Feed chan gateway.Chunk

	// Classification and images
	WantImage   bool
	ClassifyErr error
	Image       gateway.Image
	ImageErr    error

	// Titles
	Title     string
	TitleErr  error
	TitleGate chan struct{} // when set, GenerateTitle waits for it

	mu            sync.Mutex
	requests      []gateway.StreamRequest
	classifyCalls int
	imageCalls    int
	titleCalls    int
}

// New returns a fake that streams chunks and titles chats with title.
func New(title string, chunks ...string) *Fake {
	f := &Fake{Title: title}
	for _, c := range chunks {
		f.Chunks = append(f.Chunks, gateway.Chunk{Text: c})
	}
	return f
}

// ClassifyImageIntent implements gateway.Gateway.
func (f *Fake) ClassifyImageIntent(ctx context.Context, text string, m model.Model, key string) (bool, error) {
	if !m.Has(model.CapImageOutput) {
		return false, nil
	}
	f.mu.Lock()
	f.classifyCalls++
	f.mu.Unlock()
	if f.ClassifyErr != nil {
		return false, f.ClassifyErr
	}
	return f.WantImage, nil
}

// GenerateImage implements gateway.Gateway.
func (f *Fake) GenerateImage(ctx context.Context, prompt, key string) (gateway.Image, error) {
	f.mu.Lock()
	f.imageCalls++
	f.mu.Unlock()
	if f.ImageErr != nil {
		return gateway.Image{}, f.ImageErr
	}
	return f.Image, nil
}

// StreamText implements gateway.Gateway.
func (f *Fake) StreamText(ctx context.Context, req gateway.StreamRequest) (gateway.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	return &stream{ctx: ctx, chunks: append([]gateway.Chunk(nil), f.Chunks...), err: f.StreamErr, hold: f.Hold, feed: f.Feed}, nil
}

// GenerateTitle implements gateway.Gateway.
func (f *Fake) GenerateTitle(ctx context.Context, firstText string, m model.Model, key string) (string, error) {
	f.mu.Lock()
	f.titleCalls++
	f.mu.Unlock()
	if f.TitleGate != nil {
		select {
		case <-f.TitleGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.TitleErr != nil {
		return "", f.TitleErr
	}
	return f.Title, nil
}

// Requests returns the stream requests seen so far.
func (f *Fake) Requests() []gateway.StreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.StreamRequest(nil), f.requests...)
}

// ClassifyCalls returns how many classifications reached the provider.
func (f *Fake) ClassifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.classifyCalls
}

// ImageCalls returns how many images were generated.
func (f *Fake) ImageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.imageCalls
}

// TitleCalls returns how many titles were requested.
func (f *Fake) TitleCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titleCalls
}

var _ gateway.Gateway = (*Fake)(nil)

// =============================================================================
// STREAM
// =============================================================================

type stream struct {
	ctx    context.Context
	chunks []gateway.Chunk
	err    error
	hold   bool
	feed   chan gateway.Chunk
	closed bool
}

func (s *stream) Recv() (gateway.Chunk, error) {
	if err := s.ctx.Err(); err != nil {
		return gateway.Chunk{}, err
	}
	if len(s.chunks) > 0 {
		c := s.chunks[0]
		s.chunks = s.chunks[1:]
		return c, nil
	}
	if s.feed != nil {
		select {
		case c, ok := <-s.feed:
			if ok {
				return c, nil
			}
			s.feed = nil
		case <-s.ctx.Done():
			return gateway.Chunk{}, s.ctx.Err()
		}
	}
	if s.err != nil {
		return gateway.Chunk{}, s.err
	}
	if s.hold {
		<-s.ctx.Done()
		return gateway.Chunk{}, s.ctx.Err()
	}
	return gateway.Chunk{}, io.EOF
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}

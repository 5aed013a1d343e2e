// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blocker(name string) Service {
	return Func{ServiceName: name, Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}}
}

func TestGroup_FailureCancelsOthers(t *testing.T) {
	boom := errors.New("boom")
	g := Group{
		blocker("http"),
		Func{ServiceName: "watcher", Fn: func(context.Context) error { return boom }},
	}

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "watcher: boom")
	case <-time.After(2 * time.Second):
		t.Fatal("group did not stop after a failure")
	}
}

func TestGroup_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := Group{blocker("a"), blocker("b")}

	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("group ignored cancellation")
	}
}

func TestGroup_AllReturn(t *testing.T) {
	g := Group{Func{ServiceName: "once", Fn: func(context.Context) error { return nil }}}
	assert.NoError(t, g.Run(context.Background()))
}

type closer struct{ err error }

func (c closer) Close() error { return c.err }

func TestCloseAll(t *testing.T) {
	a, b := errors.New("a"), errors.New("b")
	err := CloseAll(closer{a}, closer{}, closer{b})
	require.Error(t, err)
	assert.ErrorIs(t, err, a)
	assert.ErrorIs(t, err, b)
	assert.NoError(t, CloseAll(closer{}))
}

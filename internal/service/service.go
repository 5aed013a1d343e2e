// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package service runs long-lived components side by side.
//
// A Group starts every Service with a shared context. The first service to
// fail cancels the others; Run returns once all have stopped, with every
// failure collected into one multierror.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Service is a component that runs until its context ends.
type Service interface {
	Name() string
	Run(context.Context) error
}

// Func adapts a function to Service.
type Func struct {
	ServiceName string
	Fn          func(context.Context) error
}

// Name implements Service.
func (f Func) Name() string { return f.ServiceName }

// Run implements Service.
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }

// Group runs services concurrently.
type Group []Service

// Run starts every service and blocks until all have returned. A service
// returning an error cancels the rest. A service returning nil does not.
func (g Group) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs *multierror.Error
	)
	wg.Add(len(g))
	for _, s := range g {
		go func(s Service) {
			defer wg.Done()
			if err := s.Run(runCtx); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				mu.Unlock()
				cancel()
			}
		}(s)
	}
	wg.Wait()
	return errs.ErrorOrNil()
}

// CloseAll closes every closer in order and collects the failures.
func CloseAll(closers ...interface{ Close() error }) error {
	var errs *multierror.Error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

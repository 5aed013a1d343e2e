// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/aljaroudi/t3lepathy/internal/session"
)

// ErrIndexOutOfRange is returned when a message or part index is invalid.
var ErrIndexOutOfRange = session.ErrIndexOutOfRange

// ValidationError reports a request that cannot be sent as is. Nothing has
// been written when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is matches any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NotFoundError reports a chat that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Is matches any *NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// GatewayError wraps a failure of a model call. Op names the call:
// classify, image, stream or title.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err ended a send because its context was
// cancelled.
func IsCanceled(err error) bool {
	var gw *GatewayError
	return errors.As(err, &gw) && errors.Is(gw.Err, context.Canceled)
}

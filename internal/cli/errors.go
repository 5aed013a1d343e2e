// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aljaroudi/t3lepathy/internal/chat"
	"github.com/aljaroudi/t3lepathy/internal/config"
	"github.com/aljaroudi/t3lepathy/internal/gateway"
	"github.com/aljaroudi/t3lepathy/internal/model"
	"github.com/aljaroudi/t3lepathy/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
	// ExitCanceled follows the shell convention for SIGINT.
	ExitCanceled = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError reports bad command line input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// ErrMissingArgument reports a required argument that was not given.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{Field: argName, Reason: "required argument missing", Example: usage}
}

// ErrInvalidValue reports an argument outside its allowed values.
func ErrInvalidValue(field, value, expected string) error {
	return &ValidationError{Field: field, Value: value, Reason: "unsupported value", Example: expected}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps an error to the process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cliErr *ValidationError
	var chatErr *chat.ValidationError
	var cfgErrs config.ValidateErrors

	switch {
	case chat.IsCanceled(err), errors.Is(err, context.Canceled):
		return ExitCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &cliErr):
		return ExitUsageError
	case errors.As(err, &chatErr):
		if chatErr.Field == "apiKey" {
			return ExitAuthError
		}
		return ExitUsageError
	case errors.As(err, &cfgErrs):
		return ExitConfigError
	case errors.Is(err, model.ErrInvalidAPIKey), errors.Is(err, gateway.ErrAuthFailed):
		return ExitAuthError
	case errors.Is(err, &chat.NotFoundError{}), errors.Is(err, storage.ErrNotFound):
		return ExitNotFoundError
	}

	var gwErr *chat.GatewayError
	var apiErr *gateway.APIError
	if errors.As(err, &gwErr) || errors.As(err, &apiErr) {
		return ExitNetworkError
	}
	return ExitGeneralError
}

// DisplayError writes err to w, as a JSON error response in JSON mode.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		_ = NewJSONErrorResponse(command, err).Print(w)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), err.Error())
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

const (
	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second
)

// httpDoer posts JSON to a provider with retries on 429 and 5xx.
type httpDoer struct {
	provider   model.Provider
	client     *http.Client
	maxRetries int
	logger     *slog.Logger
}

// postJSON sends body to url and returns the response once the status is
// 200. Retries happen before any body is consumed, so streaming endpoints
// are safe to retry too.
func (d *httpDoer) postJSON(ctx context.Context, url string, headers map[string]string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt)
			d.logger.Debug("retrying provider request", "provider", d.provider, "attempt", attempt+1, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := d.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		d.logger.Debug("provider response",
			"provider", d.provider,
			"status", resp.StatusCode,
			"duration", time.Since(start))

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		apiErr := handleErrorResponse(d.provider, resp)
		resp.Body.Close()
		if !isRetryableStatus(resp.StatusCode) {
			return nil, apiErr
		}
		lastErr = apiErr
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// calculateBackoff returns the delay to wait before the next retry.
func calculateBackoff(attempt int) time.Duration {
	// 500ms, 1s, 2s, ...
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// textMediaTypes are non text/* types whose payload is readable text.
var textMediaTypes = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/javascript": true,
	"application/x-yaml":     true,
	"application/toml":       true,
	"application/x-sh":       true,
	"application/sql":        true,
}

// fileText returns the contents of a text-like attachment prefixed with
// its name. ok is false for binary files.
func fileText(f model.File) (string, bool) {
	mediaType, data, err := model.DecodeDataURI(f.DataURI)
	if err != nil {
		return "", false
	}
	if mediaType == "" {
		mediaType = f.MediaType
	}
	if !strings.HasPrefix(mediaType, "text/") && !textMediaTypes[mediaType] {
		return "", false
	}
	return fmt.Sprintf("[%s]\n%s", f.Filename, data), true
}

// dataPayload returns the base64 payload of a data URI.
func dataPayload(uri string) string {
	if _, payload, ok := strings.Cut(uri, ","); ok {
		return payload
	}
	return uri
}

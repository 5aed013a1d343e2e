// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logger provides the slog handler used across t3lepathy.
//
// Records are written one per line as time, request id, level badge,
// source file and message followed by key=value attributes. Colors come
// from fatih/color and are stripped when NoColor is set.
//
// # Usage
//
//	log, closer, err := logger.New(logger.Config{Level: "debug", Color: "auto"})
//	if err != nil {
//	    return err
//	}
//	defer closer.Close()
//	slog.SetDefault(log)
//
//	ctx = logger.ContextWithRequestID(ctx, logger.NextRequestID())
//	log.ErrorContext(ctx, "send failed", logger.Err(err))
package logger

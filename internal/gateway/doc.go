// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway talks to the LLM providers.
//
// A Router implements the Gateway port by dispatching on the provider of
// the selected model. OpenAI goes through go-openai; Google and Anthropic
// are plain HTTP clients reading Server-Sent Events. Every provider sits
// behind its own rate limiter.
//
// Replies stream through a pull-based Stream: nothing is read from the
// network until the consumer calls Recv, so a slow consumer slows the
// provider down instead of buffering without bound.
//
// # Key Types
//
//   - Gateway: Port used by the chat orchestrator
//   - Router: Gateway over the OpenAI, Google and Anthropic clients
//   - Stream, Chunk, Usage: Streamed reply pieces and token accounting
//   - APIError: Provider error mapped to ErrAuthFailed, ErrRateLimited,
//     ErrModelNotFound or ErrProvider
//
// # Usage
//
//	gw := gateway.NewRouter(gateway.DefaultOptions())
//	stream, err := gw.StreamText(ctx, gateway.StreamRequest{
//	    Model:        m,
//	    Key:          key,
//	    SystemPrompt: "You are a friendly assistant!",
//	    History:      history,
//	})
//	defer stream.Close()
//	for {
//	    chunk, err := stream.Recv()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    fmt.Print(chunk.Text)
//	}
package gateway

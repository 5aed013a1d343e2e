// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs conversations: it sends user messages to a model,
// streams the reply into session state and persists every step.
//
// The Orchestrator is the only writer of chats and messages. It keeps the
// store and the in-memory session.State in step: a record is written to the
// store before it becomes visible in state, so observers never see data
// that a restart would lose.
//
// # Key Types
//
//   - Orchestrator: send protocol and chat lifecycle (load, create, select,
//     rename, delete, usage)
//   - SendRequest: one user turn with its content, model and grounding flag
//   - Store: persistence port, satisfied by *storage.Store
//   - ValidationError, NotFoundError, GatewayError: typed failures
//
// # Send
//
// A send is serialized per chat. It provisions the chat when needed, asks
// the title model to name a fresh chat in the background, persists the
// user message and an empty assistant placeholder, and then either
// generates an image or streams text into the placeholder. Streamed text
// is written to the store in batches (see Options); the final state is
// always flushed, also when the stream fails or ctx is cancelled.
//
// # Usage
//
//	orch := chat.New(store, router, state, settingsSvc, chat.Options{}, logger)
//	if err := orch.Load(ctx); err != nil {
//	    return err
//	}
//	err := orch.Send(ctx, chat.SendRequest{
//	    ChatID:  state.CurrentChatID(),
//	    Content: model.Content{model.Text{Text: "Hello!"}},
//	})
package chat

// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant orchestrates one question/answer turn: it appends the
// user's message to the transcript, streams the generated answer, persists
// the completed exchange to the backend, invalidates the conversation cache,
// and prefetches the new exchange's sources.
//
// Failure handling follows the visible-transcript rule: a stream or
// transport failure becomes a synthetic bot message prefixed "Erreur:" and
// the partial answer already shown stays visible but is never persisted. A
// persistence failure after a complete stream is returned to the caller and
// not retried.
package assistant

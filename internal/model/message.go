// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// TRANSCRIPT MESSAGES
// =============================================================================

// Sender identifies who produced a transcript message.
type Sender string

// Sender values.
const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// MessageType distinguishes typed questions from recorded ones.
type MessageType string

// MessageType values.
const (
	MessageText  MessageType = "text"
	MessageAudio MessageType = "audio"
)

// Message is one entry of the visible transcript. It is client-side state:
// the backend never sees transcript messages, only completed exchanges.
//
// AudioData holds the raw recording while the process lives and is never
// serialized; AudioURL is the uploaded object's public URL and is stripped
// before any save, so audio messages lose playability after a reload. That
// loss is accepted, not an error.
type Message struct {
	ID        string      `json:"id"`
	Content   string      `json:"content,omitempty"`
	Sender    Sender      `json:"sender"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"type"`
	AudioURL  string      `json:"audioUrl,omitempty"`
	AudioData []byte      `json:"-"`
	Duration  float64     `json:"duration,omitempty"`
}

// StripVolatile returns a copy safe for durable storage: audio payloads and
// object URLs do not survive a reload, so both are dropped.
func (m Message) StripVolatile() Message {
	m.AudioData = nil
	m.AudioURL = ""
	return m
}

// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "testing"

// HasNextPage is a length heuristic, asserted exactly: a full page always
// claims a successor, even when none exists.
func TestExchangePage_HasNextPage(t *testing.T) {
	full := &ExchangePage{Limit: 10, Data: make([]Exchange, 10)}
	if !full.HasNextPage() {
		t.Error("full page must claim a next page")
	}

	partial := &ExchangePage{Limit: 10, Data: make([]Exchange, 9)}
	if partial.HasNextPage() {
		t.Error("partial page must not claim a next page")
	}

	empty := &ExchangePage{Limit: 10}
	if empty.HasNextPage() {
		t.Error("empty page must not claim a next page")
	}
}

func TestMessage_StripVolatile(t *testing.T) {
	m := Message{
		ID:        "m1",
		Type:      MessageAudio,
		AudioURL:  "https://cdn/q.webm",
		AudioData: []byte{1, 2},
		Duration:  3.5,
	}
	got := m.StripVolatile()
	if got.AudioURL != "" || got.AudioData != nil {
		t.Errorf("volatile fields kept: %+v", got)
	}
	if got.ID != "m1" || got.Duration != 3.5 {
		t.Errorf("non-volatile fields lost: %+v", got)
	}
	if m.AudioURL == "" {
		t.Error("StripVolatile mutated its receiver")
	}
}

// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alialegal/alia-cli/internal/model"
)

// =============================================================================
// SYNTHETIC SOURCE
// =============================================================================

// SyntheticSource is a ResponseSource that replays a canned answer as a
// fixed-delay chunked stream: answer text, the marker, then the source JSON.
// It exercises the exact same parser as the HTTP endpoint and backs demo
// mode and tests.
type SyntheticSource struct {
	// Answer is the generated text emitted before the marker.
	Answer string
	// Sources is the cited source list emitted after the marker.
	Sources []model.Source
	// ChunkSize is the number of bytes per read (default 16). Chunks split
	// bytes blindly, so multi-byte characters and the marker itself may be
	// cut across reads.
	ChunkSize int
	// Delay is the pause before each chunk (default none).
	Delay time.Duration
}

// Open implements ResponseSource. The query is ignored: the canned payload
// is replayed for any question.
func (s *SyntheticSource) Open(ctx context.Context, query string) (io.ReadCloser, error) {
	sources, err := json.Marshal(struct {
		Source []model.Source `json:"source"`
	}{Source: s.Sources})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthetic sources: %w", err)
	}

	chunkSize := s.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 16
	}

	return &syntheticReader{
		ctx:       ctx,
		payload:   append([]byte(s.Answer+Marker), sources...),
		chunkSize: chunkSize,
		delay:     s.Delay,
	}, nil
}

// syntheticReader yields the payload chunk by chunk with the configured
// delay, honoring context cancellation between reads.
type syntheticReader struct {
	ctx       context.Context
	payload   []byte
	chunkSize int
	delay     time.Duration
	offset    int
	closed    bool
}

// Read implements io.Reader.
func (r *syntheticReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, io.ErrClosedPipe
	}
	if r.offset >= len(r.payload) {
		return 0, io.EOF
	}

	if r.delay > 0 {
		timer := time.NewTimer(r.delay)
		defer timer.Stop()
		select {
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		case <-timer.C:
		}
	} else if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	n := r.chunkSize
	if n > len(p) {
		n = len(p)
	}
	if remaining := len(r.payload) - r.offset; n > remaining {
		n = remaining
	}
	copy(p, r.payload[r.offset:r.offset+n])
	r.offset += n
	return n, nil
}

// Close implements io.Closer.
func (r *syntheticReader) Close() error {
	r.closed = true
	return nil
}

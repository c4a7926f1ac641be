// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alialegal/alia-cli/internal/model"
)

// Marker is the sentinel separating the streamed answer text from the
// trailing JSON source object.
const Marker = "[END_GENERATION]"

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMissingMarker indicates the stream ended without the sentinel.
	// The partial answer already shown stays displayed, but the exchange is
	// never persisted.
	ErrMissingMarker = errors.New("generation stream ended without " + Marker + " marker")

	// ErrEmptySources indicates the sentinel was seen but nothing followed.
	ErrEmptySources = errors.New("no sources received after generation")

	// ErrInvalidSourcesJSON indicates the trailing content is not parseable
	// JSON or lacks a "source" array.
	ErrInvalidSourcesJSON = errors.New("invalid sources JSON received")

	// ErrNoStreamBody indicates the response carries no readable body.
	ErrNoStreamBody = errors.New("no reader available for the stream")
)

// StreamError is a mid-stream failure that preserves the partial answer
// received before the error.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial answer received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// RESULT
// =============================================================================

// Result is the terminal outcome of a successfully parsed stream.
type Result struct {
	// Answer is the trimmed text that preceded the marker.
	Answer string
	// Sources is the "source" array of the trailing JSON object.
	Sources []model.Source
}

// =============================================================================
// PARSER
// =============================================================================

// PartialFunc receives the full accumulated answer text after each chunk:
// cumulative prefixes, never deltas, because the display replaces the last
// message's content wholesale on every update.
type PartialFunc func(answer string)

// Parser is the incremental state machine over one generation stream.
//
// Before the marker the cumulative decoded text is the live answer; once the
// marker appears the prefix is frozen (trimmed) and every later byte belongs
// to the raw source tail, with no further marker search. The marker may be
// split across chunk boundaries, so detection always runs against the
// accumulated text, not a single chunk.
type Parser struct {
	onPartial PartialFunc

	full       strings.Builder
	rawTail    strings.Builder
	answer     string
	markerSeen bool

	// carry holds the trailing bytes of an incomplete UTF-8 sequence; a
	// multi-byte character may span chunk boundaries and must not be
	// corrupted.
	carry []byte
}

// NewParser creates a parser. onPartial may be nil.
func NewParser(onPartial PartialFunc) *Parser {
	return &Parser{onPartial: onPartial}
}

// Feed consumes one chunk of raw bytes from the stream, in arrival order.
func (p *Parser) Feed(chunk []byte) {
	buf := chunk
	if len(p.carry) > 0 {
		buf = append(p.carry, chunk...)
		p.carry = nil
	}

	complete, rest := splitCompleteRunes(buf)
	if len(rest) > 0 {
		p.carry = append([]byte(nil), rest...)
	}
	if len(complete) == 0 {
		return
	}

	p.consume(string(complete))
}

// consume appends decoded text and advances the marker state machine.
func (p *Parser) consume(text string) {
	if text == "" {
		return
	}
	p.full.WriteString(text)

	if p.markerSeen {
		p.rawTail.WriteString(text)
		return
	}

	full := p.full.String()
	if idx := strings.Index(full, Marker); idx >= 0 {
		p.answer = strings.TrimSpace(full[:idx])
		p.rawTail.WriteString(full[idx+len(Marker):])
		p.markerSeen = true
		p.emit(p.answer)
		return
	}

	p.emit(full)
}

func (p *Parser) emit(answer string) {
	if p.onPartial != nil {
		p.onPartial(answer)
	}
}

// PartialAnswer returns the best answer text seen so far: the frozen answer
// once the marker was observed, otherwise the full accumulated text.
func (p *Parser) PartialAnswer() string {
	if p.markerSeen {
		return p.answer
	}
	return p.full.String()
}

// Finish closes the stream and classifies the outcome.
func (p *Parser) Finish() (*Result, error) {
	// A dangling incomplete sequence at end of stream decodes to the
	// replacement character, matching an eager text decoder's flush.
	if len(p.carry) > 0 {
		p.consume(string(p.carry))
		p.carry = nil
	}

	if !p.markerSeen {
		return nil, ErrMissingMarker
	}

	tail := strings.TrimSpace(p.rawTail.String())
	if tail == "" {
		return nil, ErrEmptySources
	}

	var parsed struct {
		Source []model.Source `json:"source"`
	}
	if err := json.Unmarshal([]byte(tail), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSourcesJSON, err)
	}
	if parsed.Source == nil {
		return nil, fmt.Errorf("%w: missing source field", ErrInvalidSourcesJSON)
	}

	return &Result{Answer: p.answer, Sources: parsed.Source}, nil
}

// splitCompleteRunes splits buf into the longest prefix of whole UTF-8
// sequences and the trailing bytes of an unfinished one.
func splitCompleteRunes(buf []byte) (complete, rest []byte) {
	n := len(buf)
	if n == 0 {
		return nil, nil
	}

	// Find the start of the last rune, at most UTFMax-1 bytes back.
	start := -1
	for i := 1; i <= utf8.UTFMax && i <= n; i++ {
		if utf8.RuneStart(buf[n-i]) {
			start = n - i
			break
		}
	}
	if start < 0 {
		// No rune start within reach: the bytes are invalid anyway, let
		// them decode to replacement characters.
		return buf, nil
	}
	if utf8.FullRune(buf[start:]) {
		return buf, nil
	}
	return buf[:start], buf[start:]
}

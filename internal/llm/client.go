// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// RESPONSE SOURCE
// =============================================================================

// ResponseSource opens a generation response stream for a query. The
// returned reader must be closed by the caller; closing releases the
// underlying connection and is the cancellation handle for the stream.
type ResponseSource interface {
	Open(ctx context.Context, query string) (io.ReadCloser, error)
}

// GenerationParams are the tuning parameters forwarded verbatim as query
// parameters. Empty values are still sent; the endpoint applies its own
// defaults for them.
type GenerationParams struct {
	Model               string
	Temperature         string
	SimilarityThreshold string
	TopK                string
}

// =============================================================================
// HTTP ENDPOINT
// =============================================================================

// streamingClient has no overall timeout: the generation stream is long
// lived and cancellation is context-controlled.
var streamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// Endpoint is the real streaming generation endpoint.
type Endpoint struct {
	url        string
	token      string
	httpClient *http.Client

	mu     sync.Mutex
	params GenerationParams
}

// NewEndpoint creates a source for the generation endpoint at rawURL.
func NewEndpoint(rawURL, token string, params GenerationParams) *Endpoint {
	return &Endpoint{
		url:        rawURL,
		token:      token,
		httpClient: streamingClient,
		params:     params,
	}
}

// WithHTTPClient replaces the underlying HTTP client (used in tests).
func (e *Endpoint) WithHTTPClient(hc *http.Client) *Endpoint {
	e.httpClient = hc
	return e
}

// SetParams swaps the generation parameters; the next Open uses them. Wired
// to config reload.
func (e *Endpoint) SetParams(params GenerationParams) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = params
}

// Open implements ResponseSource. The query may be a typed question or the
// public URL of an uploaded recording.
func (e *Endpoint) Open(ctx context.Context, query string) (io.ReadCloser, error) {
	e.mu.Lock()
	p := e.params
	e.mu.Unlock()

	qs := url.Values{}
	qs.Set("query", query)
	qs.Set("model", p.Model)
	qs.Set("temperature", p.Temperature)
	qs.Set("similarity_threshold", p.SimilarityThreshold)
	qs.Set("top_k", p.TopK)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url+"?"+qs.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("generation endpoint returned HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	if resp.Body == nil {
		return nil, ErrNoStreamBody
	}
	return resp.Body, nil
}

// =============================================================================
// CLIENT
// =============================================================================

// Client reads a generation stream from any ResponseSource through the
// marker parser.
type Client struct {
	source ResponseSource
	log    *zap.Logger
}

// NewClient creates a stream client over the given source.
func NewClient(source ResponseSource, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{source: source, log: log}
}

// Stream runs one generation: it opens the stream for query, feeds each
// chunk to the parser in arrival order, reports cumulative partial answers
// to onPartial, and returns the terminal result.
//
// No read timeout is enforced; the stream is awaited until EOF. Cancel via
// ctx; after cancellation no partial callbacks fire.
func (c *Client) Stream(ctx context.Context, query string, onPartial PartialFunc) (*Result, error) {
	body, err := c.source.Open(ctx, query)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	start := time.Now()
	parser := NewParser(onPartial)
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, &StreamError{Partial: parser.PartialAnswer(), Err: err}
		}
	}

	result, err := parser.Finish()
	if err != nil {
		return nil, &StreamError{Partial: parser.PartialAnswer(), Err: err}
	}

	c.log.Debug("generation stream complete",
		zap.Int("answer_chars", len(result.Answer)),
		zap.Int("sources", len(result.Sources)),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alialegal/alia-cli/internal/model"
)

// =============================================================================
// SYNTHETIC SOURCE
// =============================================================================

func TestClient_StreamFromSyntheticSource(t *testing.T) {
	src := &SyntheticSource{
		Answer: "La clause est abusive au sens de l'article L212-1.",
		Sources: []model.Source{
			{ID: "s1", Reference: "1", Title: "Code de la consommation"},
		},
		ChunkSize: 3, // small enough to split the marker and multi-byte runes
	}
	client := NewClient(src, nil)

	var partials []string
	result, err := client.Stream(context.Background(), "question", func(answer string) {
		partials = append(partials, answer)
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if result.Answer != src.Answer {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.Sources) != 1 || result.Sources[0].ID != "s1" {
		t.Errorf("Sources = %+v", result.Sources)
	}
	if len(partials) == 0 {
		t.Fatal("no partial updates")
	}
	if last := partials[len(partials)-1]; last != src.Answer {
		t.Errorf("final partial = %q", last)
	}
}

func TestClient_StreamCancellation(t *testing.T) {
	src := &SyntheticSource{
		Answer:    strings.Repeat("très longue réponse ", 100),
		Sources:   []model.Source{{ID: "s1"}},
		ChunkSize: 4,
		Delay:     20 * time.Millisecond,
	}
	client := NewClient(src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Stream(ctx, "question", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// =============================================================================
// MID-STREAM FAILURE
// =============================================================================

// failingSource delivers a prefix of the answer and then errors.
type failingSource struct {
	prefix string
}

func (s *failingSource) Open(_ context.Context, _ string) (io.ReadCloser, error) {
	return &failingReader{data: []byte(s.prefix)}, nil
}

type failingReader struct {
	data []byte
	off  int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, errors.New("connection reset")
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}

func (r *failingReader) Close() error { return nil }

func TestClient_MidStreamFailureKeepsPartial(t *testing.T) {
	client := NewClient(&failingSource{prefix: "début de réponse"}, nil)

	_, err := client.Stream(context.Background(), "q", nil)
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("err = %v, want *StreamError", err)
	}
	if streamErr.Partial != "début de réponse" {
		t.Errorf("Partial = %q", streamErr.Partial)
	}
}

// A complete-looking stream that never carries the marker fails at Finish,
// again with the partial preserved.
func TestClient_MissingMarkerWrappedAsStreamError(t *testing.T) {
	client := NewClient(sourceFunc(func(ctx context.Context, q string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("pas de marqueur")), nil
	}), nil)

	_, err := client.Stream(context.Background(), "q", nil)
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("err = %v, want *StreamError", err)
	}
	if !errors.Is(err, ErrMissingMarker) {
		t.Errorf("err does not unwrap to ErrMissingMarker: %v", err)
	}
	if streamErr.Partial != "pas de marqueur" {
		t.Errorf("Partial = %q", streamErr.Partial)
	}
}

// sourceFunc adapts a function to ResponseSource.
type sourceFunc func(ctx context.Context, query string) (io.ReadCloser, error)

func (f sourceFunc) Open(ctx context.Context, query string) (io.ReadCloser, error) {
	return f(ctx, query)
}

// =============================================================================
// HTTP ENDPOINT
// =============================================================================

func TestEndpoint_OpenSendsQueryAndAuth(t *testing.T) {
	var gotQuery, gotAuth, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		if r.URL.Query().Get("model") != "alia-legal-v2" {
			t.Errorf("model param = %q", r.URL.Query().Get("model"))
		}
		// Unset parameters are still present, just empty.
		if _, ok := r.URL.Query()["top_k"]; !ok {
			t.Error("top_k param missing")
		}
		w.Write([]byte("réponse" + Marker + `{"source":[]}`))
	}))
	defer server.Close()

	endpoint := NewEndpoint(server.URL, "secret-token", GenerationParams{Model: "alia-legal-v2"})
	client := NewClient(endpoint, nil)

	result, err := client.Stream(context.Background(), "ma question", nil)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if result.Answer != "réponse" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if gotQuery != "ma question" {
		t.Errorf("query param = %q", gotQuery)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "text/event-stream" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestEndpoint_OpenWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected Authorization header: %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte("ok" + Marker + `{"source":[]}`))
	}))
	defer server.Close()

	endpoint := NewEndpoint(server.URL, "", GenerationParams{})
	if _, err := NewClient(endpoint, nil).Stream(context.Background(), "q", nil); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
}

func TestEndpoint_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	endpoint := NewEndpoint(server.URL, "", GenerationParams{})
	_, err := NewClient(endpoint, nil).Stream(context.Background(), "q", nil)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v, want HTTP 502 failure", err)
	}
}

// SetParams takes effect on the next Open, exercised by the config reload
// path.
func TestEndpoint_SetParams(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotModel = r.URL.Query().Get("model")
		w.Write([]byte("ok" + Marker + `{"source":[]}`))
	}))
	defer server.Close()

	endpoint := NewEndpoint(server.URL, "", GenerationParams{Model: "old"})
	endpoint.SetParams(GenerationParams{Model: "new"})

	if _, err := NewClient(endpoint, nil).Stream(context.Background(), "q", nil); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if gotModel != "new" {
		t.Errorf("model param = %q, want new", gotModel)
	}
}

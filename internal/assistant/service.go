// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alialegal/alia-cli/internal/api"
	"github.com/alialegal/alia-cli/internal/history"
	"github.com/alialegal/alia-cli/internal/llm"
	"github.com/alialegal/alia-cli/internal/model"
)

// prefetchTimeout bounds the background source prefetch after an exchange is
// persisted. Prefetch is best-effort: a miss only delays the first citation
// lookup, which fetches on demand anyway.
const prefetchTimeout = 30 * time.Second

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Backend is the slice of the REST client the service needs.
type Backend interface {
	CreateDiscussion(ctx context.Context, title string) (string, error)
	ListDiscussions(ctx context.Context) ([]model.Discussion, error)
	CreateChat(ctx context.Context, in api.CreateChatInput) (string, error)
	UploadAudio(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Streamer runs one generation stream and returns the terminal result.
type Streamer interface {
	Stream(ctx context.Context, query string, onPartial llm.PartialFunc) (*llm.Result, error)
}

// Invalidator drops a discussion's cached pages after its contents changed
// server-side.
type Invalidator interface {
	Invalidate(discussionID string)
}

// Prefetcher warms the source cache for a freshly persisted exchange.
type Prefetcher interface {
	Sources(ctx context.Context, exchangeID string) ([]model.Source, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service owns the visible transcript and runs question/answer turns
// against the streaming endpoint and the REST backend.
type Service struct {
	backend       Backend
	streamer      Streamer
	conversations Invalidator
	sources       Prefetcher
	store         *history.Store
	log           *zap.Logger

	mu       sync.Mutex
	messages []model.Message
}

// NewService creates the orchestration service. store may be nil to disable
// transcript persistence (used in tests).
func NewService(backend Backend, streamer Streamer, conversations Invalidator, sources Prefetcher, store *history.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		backend:       backend,
		streamer:      streamer,
		conversations: conversations,
		sources:       sources,
		store:         store,
		log:           log,
	}
}

// Restore loads the saved transcript as the starting state. A corrupt or
// missing save yields an empty transcript, never an error.
func (s *Service) Restore() error {
	if s.store == nil {
		return nil
	}
	messages, err := s.store.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()
	return nil
}

// Messages returns a snapshot of the visible transcript.
func (s *Service) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ClearTranscript empties the visible transcript and its saved mirror.
// Called when the user switches to a fresh discussion.
func (s *Service) ClearTranscript() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
	s.persist()
}

// NewDiscussion creates a named discussion on the backend.
func (s *Service) NewDiscussion(ctx context.Context, title string) (string, error) {
	return s.backend.CreateDiscussion(ctx, title)
}

// Discussions lists the user's discussions, newest first.
func (s *Service) Discussions(ctx context.Context) ([]model.Discussion, error) {
	return s.backend.ListDiscussions(ctx)
}

// =============================================================================
// QUESTION TURNS
// =============================================================================

// Ask runs one typed question/answer turn in the given discussion.
//
// The question is appended to the transcript immediately. Cumulative partial
// answers are reported through onPartial while the stream runs. On a complete
// stream the answer is appended as a bot message, the exchange is persisted
// to the backend, the discussion's page cache is invalidated, and the new
// exchange's sources are prefetched in the background.
//
// A stream failure appends an "Erreur:" bot message and returns the error;
// nothing is persisted to the backend. A persistence failure after a
// complete stream is returned to the caller; the answer stays visible, the
// exchange is simply absent server-side.
func (s *Service) Ask(ctx context.Context, discussionID, question string, onPartial llm.PartialFunc) (string, error) {
	s.append(model.Message{
		ID:        uuid.NewString(),
		Content:   question,
		Sender:    model.SenderUser,
		Timestamp: time.Now(),
		Type:      model.MessageText,
	})
	return s.stream(ctx, discussionID, question, question, onPartial)
}

// AskAudio runs one recorded question/answer turn: the recording is uploaded
// first and its public URL becomes the generation query. The transcript
// message keeps the raw recording in memory for replay; neither the payload
// nor the URL survives a save.
func (s *Service) AskAudio(ctx context.Context, discussionID, filename string, audio []byte, duration float64, onPartial llm.PartialFunc) (string, error) {
	publicURL, err := s.backend.UploadAudio(ctx, filename, bytes.NewReader(audio))
	if err != nil {
		s.appendError(err)
		return "", err
	}

	s.append(model.Message{
		ID:        uuid.NewString(),
		Sender:    model.SenderUser,
		Timestamp: time.Now(),
		Type:      model.MessageAudio,
		AudioURL:  publicURL,
		AudioData: audio,
		Duration:  duration,
	})
	return s.stream(ctx, discussionID, publicURL, publicURL, onPartial)
}

// stream runs the generation and the post-stream persistence tail shared by
// typed and recorded questions. query is sent to the generation endpoint;
// question is what the backend records for the exchange.
func (s *Service) stream(ctx context.Context, discussionID, query, question string, onPartial llm.PartialFunc) (string, error) {
	result, err := s.streamer.Stream(ctx, query, onPartial)
	if err != nil {
		s.appendError(err)
		return "", err
	}

	s.append(model.Message{
		ID:        uuid.NewString(),
		Content:   result.Answer,
		Sender:    model.SenderBot,
		Timestamp: time.Now(),
		Type:      model.MessageText,
	})

	exchangeID, err := s.backend.CreateChat(ctx, api.CreateChatInput{
		Question:     question,
		DiscussionID: discussionID,
		Answer:       result.Answer,
		Documents:    result.Sources,
	})
	if err != nil {
		s.log.Warn("exchange not persisted",
			zap.String("discussion", discussionID),
			zap.Error(err))
		return "", err
	}

	s.conversations.Invalidate(discussionID)
	go s.prefetch(exchangeID)

	s.log.Info("exchange persisted",
		zap.String("discussion", discussionID),
		zap.String("exchange", exchangeID),
		zap.Int("sources", len(result.Sources)))
	return exchangeID, nil
}

// prefetch warms the source cache so the first citation lookup resolves
// without a round trip.
func (s *Service) prefetch(exchangeID string) {
	ctx, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
	defer cancel()
	if _, err := s.sources.Sources(ctx, exchangeID); err != nil {
		s.log.Debug("source prefetch failed",
			zap.String("exchange", exchangeID),
			zap.Error(err))
	}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// append adds a message to the transcript and mirrors it to local storage.
func (s *Service) append(m model.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
	s.persist()
}

// appendError turns a failed turn into a synthetic bot message. The partial
// answer already delivered through onPartial stays on screen; this message
// follows it.
func (s *Service) appendError(err error) {
	s.append(model.Message{
		ID:        uuid.NewString(),
		Content:   "Erreur: " + err.Error(),
		Sender:    model.SenderBot,
		Timestamp: time.Now(),
		Type:      model.MessageText,
	})
}

// persist mirrors the transcript to local storage. Failures are logged, not
// surfaced: losing the mirror must never break a turn.
func (s *Service) persist() {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	snapshot := make([]model.Message, len(s.messages))
	copy(snapshot, s.messages)
	s.mu.Unlock()
	if err := s.store.Save(snapshot); err != nil {
		s.log.Warn("transcript not saved", zap.Error(err))
	}
}

// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation caches a discussion's paginated exchanges.
package conversation

import (
	"context"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/alialegal/alia-cli/internal/model"
)

// =============================================================================
// STORE
// =============================================================================

// Lister fetches one page of a discussion's exchanges from the backend.
type Lister interface {
	ListChats(ctx context.Context, discussionID string, page, limit int) (*model.ExchangePage, error)
}

// Store holds the loaded pages of each discussion, keyed by discussion id
// and page number, merged into one ordered sequence on read.
//
// The cache is eventually consistent with the server: a freshly completed
// exchange is never spliced in locally, the discussion's pages are
// invalidated and refetched instead. Concurrent fetches of the same page key
// are not deduplicated; the last response to arrive is what the cache holds.
type Store struct {
	lister Lister
	limit  int
	cache  *gocache.Cache
	log    *zap.Logger
}

// NewStore creates a store fetching pages of the given size through lister.
func NewStore(lister Lister, limit int, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		lister: lister,
		limit:  limit,
		cache:  gocache.New(5*time.Minute, 10*time.Minute),
		log:    log,
	}
}

// Limit returns the page size used for fetches.
func (s *Store) Limit() int {
	return s.limit
}

// =============================================================================
// PAGE LOADING
// =============================================================================

// LoadPage fetches one page from the backend and caches it.
//
// Whether more data exists is the documented length heuristic
// (ExchangePage.HasNextPage): an exactly-full final page triggers one extra
// fetch whose empty result is cached and reported as end-of-data, not as an
// error.
func (s *Store) LoadPage(ctx context.Context, discussionID string, page int) (*model.ExchangePage, error) {
	result, err := s.lister.ListChats(ctx, discussionID, page, s.limit)
	if err != nil {
		return nil, err
	}
	// Last-received response wins for this page key.
	s.cache.Set(pageKey(discussionID, page), result, gocache.DefaultExpiration)
	s.log.Debug("page cached",
		zap.String("discussion", discussionID),
		zap.Int("page", page),
		zap.Int("items", len(result.Data)))
	return result, nil
}

// LoadAll walks pages from 1 until the heuristic reports no successor, and
// returns the merged exchange list.
func (s *Store) LoadAll(ctx context.Context, discussionID string) ([]model.Exchange, error) {
	for page := 1; ; page++ {
		result, err := s.LoadPage(ctx, discussionID, page)
		if err != nil {
			return nil, err
		}
		if !result.HasNextPage() {
			break
		}
	}
	return s.Exchanges(discussionID), nil
}

// CachedPage returns the cached page, if present.
func (s *Store) CachedPage(discussionID string, page int) (*model.ExchangePage, bool) {
	v, ok := s.cache.Get(pageKey(discussionID, page))
	if !ok {
		return nil, false
	}
	return v.(*model.ExchangePage), true
}

// =============================================================================
// MERGED VIEW
// =============================================================================

// Exchanges returns every cached exchange of the discussion in page order.
// Server page order is preserved within and across pages; duplicate ids are
// dropped, first occurrence wins. The walk stops at the first page gap so a
// partially invalidated cache never yields a sequence with holes.
func (s *Store) Exchanges(discussionID string) []model.Exchange {
	var merged []model.Exchange
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		cached, ok := s.CachedPage(discussionID, page)
		if !ok {
			break
		}
		for _, ex := range cached.Data {
			if _, dup := seen[ex.ID]; dup {
				continue
			}
			seen[ex.ID] = struct{}{}
			merged = append(merged, ex)
		}
	}
	return merged
}

// =============================================================================
// INVALIDATION
// =============================================================================

// Invalidate drops every cached page of the discussion, forcing the next
// read to reflect server state. Called after an exchange is persisted.
func (s *Store) Invalidate(discussionID string) {
	prefix := discussionID + keySeparator
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
	s.log.Debug("discussion cache invalidated", zap.String("discussion", discussionID))
}

// =============================================================================
// KEYS
// =============================================================================

// keySeparator cannot occur in backend ids.
const keySeparator = "\x00"

func pageKey(discussionID string, page int) string {
	return discussionID + keySeparator + strconv.Itoa(page)
}

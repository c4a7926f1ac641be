// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package source lazily fetches and resolves an exchange's cited sources.
package source

import (
	"context"
	"sort"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/alialegal/alia-cli/internal/model"
)

// =============================================================================
// RESOLVER
// =============================================================================

// Fetcher fetches the source list of one exchange from the backend.
type Fetcher interface {
	GetSources(ctx context.Context, chatID string) (*model.SourcePage, error)
}

// Resolver caches each exchange's sources, fetched at most once per
// exchange id, and resolves citation markers clicked in an answer to
// concrete source records.
type Resolver struct {
	fetcher Fetcher
	cache   *gocache.Cache
	log     *zap.Logger
}

// NewResolver creates a resolver over the given fetcher.
func NewResolver(fetcher Fetcher, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		fetcher: fetcher,
		cache:   gocache.New(gocache.NoExpiration, 10*time.Minute),
		log:     log,
	}
}

// Sources returns the exchange's sources in server fetch order, fetching
// them on first use. Sources are immutable, so a cached list never expires.
func (r *Resolver) Sources(ctx context.Context, exchangeID string) ([]model.Source, error) {
	if cached, ok := r.cache.Get(exchangeID); ok {
		return cached.([]model.Source), nil
	}

	page, err := r.fetcher.GetSources(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(exchangeID, page.Data, gocache.NoExpiration)
	r.log.Debug("sources fetched",
		zap.String("exchange", exchangeID),
		zap.Int("count", len(page.Data)))
	return page.Data, nil
}

// DisplaySources returns the exchange's sources ordered for display:
// ascending numeric reference, non-numeric references last, stable within
// ties. Resolution itself never uses this ordering.
func (r *Resolver) DisplaySources(ctx context.Context, exchangeID string) ([]model.Source, error) {
	fetched, err := r.Sources(ctx, exchangeID)
	if err != nil {
		return nil, err
	}

	ordered := make([]model.Source, len(fetched))
	copy(ordered, fetched)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, aok := refNumber(ordered[i].Reference)
		b, bok := refNumber(ordered[j].Reference)
		if aok != bok {
			return aok
		}
		return a < b
	})
	return ordered, nil
}

// Selection is one picked citation: a reference marker together with the
// exchange whose answer contained it. It is an explicit value handed from the
// answer view to whoever opens the document, never process-wide state, so two
// discussion views can hold different selections.
type Selection struct {
	Reference  string
	ExchangeID string
}

// ResolveReference correlates a clicked citation marker with a source of the
// given exchange: the first source, in fetch order, whose Reference or ID
// equals reference.
//
// Returns nil when the exchange is unknown or its sources have not resolved
// yet. That is "not ready", not an error; callers may retry once the fetch
// completes.
func (r *Resolver) ResolveReference(reference, exchangeID string) *model.Source {
	cached, ok := r.cache.Get(exchangeID)
	if !ok {
		return nil
	}
	for _, src := range cached.([]model.Source) {
		if src.Reference == reference || src.ID == reference {
			return &src
		}
	}
	return nil
}

// Resolve resolves a selection. A meaningless selection (unknown exchange,
// unresolved sources, no matching reference) yields nil and opens nothing.
func (r *Resolver) Resolve(sel Selection) *model.Source {
	return r.ResolveReference(sel.Reference, sel.ExchangeID)
}

// refNumber parses a citation reference as a number for display ordering.
func refNumber(ref string) (float64, bool) {
	n, err := strconv.ParseFloat(ref, 64)
	return n, err == nil
}

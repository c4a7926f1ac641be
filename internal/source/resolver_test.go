// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alialegal/alia-cli/internal/model"
)

type fakeFetcher struct {
	pages map[string][]model.Source
	calls int
	err   error
}

func (f *fakeFetcher) GetSources(_ context.Context, chatID string) (*model.SourcePage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data := f.pages[chatID]
	return &model.SourcePage{Count: len(data), Data: data}, nil
}

// =============================================================================
// FETCH-ONCE CACHING
// =============================================================================

func TestResolver_SourcesFetchedOnce(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]model.Source{
		"e1": {{ID: "s1", Reference: "1"}, {ID: "s2", Reference: "2"}},
	}}
	r := NewResolver(fetcher, nil)

	first, err := r.Sources(context.Background(), "e1")
	require.NoError(t, err)
	second, err := r.Sources(context.Background(), "e1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fetcher.calls, "sources are immutable, one fetch per exchange")
}

func TestResolver_FetchErrorNotCached(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("backend down")}
	r := NewResolver(fetcher, nil)

	_, err := r.Sources(context.Background(), "e1")
	require.Error(t, err)

	// A later call retries instead of serving the failure.
	fetcher.err = nil
	fetcher.pages = map[string][]model.Source{"e1": {{ID: "s1"}}}
	got, err := r.Sources(context.Background(), "e1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// =============================================================================
// REFERENCE RESOLUTION
// =============================================================================

func TestResolver_ResolveReference(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]model.Source{
		"e1": {
			{ID: "s1", Reference: "1", Title: "Code civil art. 1134"},
			{ID: "s2", Reference: "2", Title: "Code civil art. 1135"},
		},
	}}
	r := NewResolver(fetcher, nil)
	_, err := r.Sources(context.Background(), "e1")
	require.NoError(t, err)

	got := r.ResolveReference("2", "e1")
	require.NotNil(t, got)
	assert.Equal(t, "s2", got.ID)

	// A source id works as the lookup key too.
	got = r.ResolveReference("s1", "e1")
	require.NotNil(t, got)
	assert.Equal(t, "1", got.Reference)

	assert.Nil(t, r.ResolveReference("9", "e1"), "unknown reference")
}

// Resolution consults only the cache: an unfetched exchange is "not ready",
// not an error, and triggers no fetch.
func TestResolver_ResolveBeforeFetchIsNotReady(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]model.Source{
		"e1": {{ID: "s1", Reference: "1"}},
	}}
	r := NewResolver(fetcher, nil)

	assert.Nil(t, r.ResolveReference("1", "e1"))
	assert.Equal(t, 0, fetcher.calls)
}

// A selection is only meaningful against the sources of its own exchange.
func TestResolver_SelectionScopedToExchange(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]model.Source{
		"e1": {{ID: "s1", Reference: "1"}},
		"e2": {{ID: "s9", Reference: "9"}},
	}}
	r := NewResolver(fetcher, nil)
	_, err := r.Sources(context.Background(), "e1")
	require.NoError(t, err)
	_, err = r.Sources(context.Background(), "e2")
	require.NoError(t, err)

	require.NotNil(t, r.Resolve(Selection{Reference: "1", ExchangeID: "e1"}))
	assert.Nil(t, r.Resolve(Selection{Reference: "1", ExchangeID: "e2"}),
		"reference from another exchange must not resolve")
}

// =============================================================================
// DISPLAY ORDERING
// =============================================================================

func TestResolver_DisplaySourcesNumericOrder(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]model.Source{
		"e1": {
			{ID: "s10", Reference: "10"},
			{ID: "s2", Reference: "2"},
			{ID: "sx", Reference: "annexe"},
			{ID: "s1", Reference: "1"},
		},
	}}
	r := NewResolver(fetcher, nil)

	ordered, err := r.DisplaySources(context.Background(), "e1")
	require.NoError(t, err)

	var refs []string
	for _, s := range ordered {
		refs = append(refs, s.Reference)
	}
	assert.Equal(t, []string{"1", "2", "10", "annexe"}, refs)

	// Display ordering must not disturb the fetch-order cache used for
	// resolution.
	cached, err := r.Sources(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "10", cached[0].Reference)
}

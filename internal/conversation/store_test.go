// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alialegal/alia-cli/internal/model"
)

// fakeLister serves pages from an in-memory exchange list with the backend's
// slicing behavior: pages past the end come back empty, not as errors.
type fakeLister struct {
	exchanges map[string][]model.Exchange
	calls     int
	err       error
}

func (f *fakeLister) ListChats(_ context.Context, discussionID string, page, limit int) (*model.ExchangePage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	all := f.exchanges[discussionID]
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return &model.ExchangePage{
		Count: len(all),
		Limit: limit,
		Page:  page,
		Data:  all[start:end],
	}, nil
}

func makeExchanges(n int) []model.Exchange {
	out := make([]model.Exchange, n)
	for i := range out {
		out[i] = model.Exchange{ID: fmt.Sprintf("e%d", i+1), Question: fmt.Sprintf("q%d", i+1)}
	}
	return out
}

// =============================================================================
// PAGINATION HEURISTIC
// =============================================================================

// A partial page means end-of-data: one fetch, no successor probe.
func TestStore_LoadAllPartialLastPage(t *testing.T) {
	lister := &fakeLister{exchanges: map[string][]model.Exchange{"d": makeExchanges(7)}}
	store := NewStore(lister, 10, nil)

	got, err := store.LoadAll(context.Background(), "d")
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(got) != 7 {
		t.Errorf("len = %d, want 7", len(got))
	}
	if lister.calls != 1 {
		t.Errorf("calls = %d, want 1", lister.calls)
	}
}

// An exactly-full last page is indistinguishable from a continuing one: the
// walk costs one extra fetch whose empty result means end-of-data.
func TestStore_LoadAllExactlyFullLastPage(t *testing.T) {
	lister := &fakeLister{exchanges: map[string][]model.Exchange{"d": makeExchanges(20)}}
	store := NewStore(lister, 10, nil)

	got, err := store.LoadAll(context.Background(), "d")
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("len = %d, want 20", len(got))
	}
	if lister.calls != 3 {
		t.Errorf("calls = %d, want 3 (two full pages plus the empty probe)", lister.calls)
	}
}

func TestStore_LoadAllEmptyDiscussion(t *testing.T) {
	lister := &fakeLister{exchanges: map[string][]model.Exchange{}}
	store := NewStore(lister, 10, nil)

	got, err := store.LoadAll(context.Background(), "d")
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestStore_LoadPageError(t *testing.T) {
	lister := &fakeLister{err: errors.New("backend down")}
	store := NewStore(lister, 10, nil)

	if _, err := store.LoadAll(context.Background(), "d"); err == nil {
		t.Fatal("expected error")
	}
	// Nothing was cached for the failed fetch.
	if _, ok := store.CachedPage("d", 1); ok {
		t.Error("failed page was cached")
	}
}

// =============================================================================
// MERGED VIEW
// =============================================================================

func TestStore_ExchangesPreservesOrderAndDedupes(t *testing.T) {
	store := NewStore(&fakeLister{}, 3, nil)

	// Simulate a refetch race: e3 appears both at the end of page 1 and at
	// the start of page 2 because an insert shifted the windows.
	store.cache.Set(pageKey("d", 1), &model.ExchangePage{
		Limit: 3,
		Data:  []model.Exchange{{ID: "e1"}, {ID: "e2"}, {ID: "e3", Question: "first"}},
	}, 0)
	store.cache.Set(pageKey("d", 2), &model.ExchangePage{
		Limit: 3,
		Data:  []model.Exchange{{ID: "e3", Question: "dup"}, {ID: "e4"}},
	}, 0)

	got := store.Exchanges("d")
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for i, want := range []string{"e1", "e2", "e3", "e4"} {
		if got[i].ID != want {
			t.Errorf("got[%d] = %q, want %q", i, got[i].ID, want)
		}
	}
	if got[2].Question != "first" {
		t.Errorf("duplicate resolution: got %q, want first occurrence", got[2].Question)
	}
}

// A page gap stops the merge so a partially cached discussion never shows a
// sequence with holes.
func TestStore_ExchangesStopsAtPageGap(t *testing.T) {
	store := NewStore(&fakeLister{}, 2, nil)
	store.cache.Set(pageKey("d", 1), &model.ExchangePage{Data: []model.Exchange{{ID: "e1"}}}, 0)
	store.cache.Set(pageKey("d", 3), &model.ExchangePage{Data: []model.Exchange{{ID: "e5"}}}, 0)

	got := store.Exchanges("d")
	if len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("got = %+v, want only page 1", got)
	}
}

// =============================================================================
// INVALIDATION
// =============================================================================

func TestStore_InvalidateDropsOnlyThatDiscussion(t *testing.T) {
	lister := &fakeLister{exchanges: map[string][]model.Exchange{
		"d1": makeExchanges(2),
		"d2": makeExchanges(2),
	}}
	store := NewStore(lister, 10, nil)

	if _, err := store.LoadPage(context.Background(), "d1", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := store.LoadPage(context.Background(), "d2", 1); err != nil {
		t.Fatal(err)
	}

	store.Invalidate("d1")

	if _, ok := store.CachedPage("d1", 1); ok {
		t.Error("d1 page still cached")
	}
	if _, ok := store.CachedPage("d2", 1); !ok {
		t.Error("d2 page was dropped")
	}
}

package catalog_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/spool/pkg/backend"
	"github.com/papercomputeco/spool/pkg/catalog"
	"github.com/papercomputeco/spool/pkg/transcript"
)

func names(entries []*catalog.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

var _ = Describe("Snapshot ordering", func() {
	var (
		store *catalog.Store
		ctx   context.Context
	)

	at := func(day int) time.Time {
		return time.Date(2025, 6, day, 12, 0, 0, 0, time.UTC)
	}

	BeforeEach(func() {
		store = catalog.NewStore()
		ctx = context.Background()
		store.Refresh(ctx, "alice", []backend.LogInfo{
			{Name: "old", Revision: "r1", LastTurnAt: at(1)},
			{Name: "new", Revision: "r1", LastTurnAt: at(20)},
			{Name: "mid", Revision: "r1", LastTurnAt: at(10)},
		})
	})

	It("orders by recency descending", func() {
		Expect(names(store.Snapshot())).To(Equal([]string{"new", "mid", "old"}))
	})

	It("breaks timestamp ties by insertion order, then name", func() {
		store.Refresh(ctx, "alice", []backend.LogInfo{
			{Name: "b-no-ts", Revision: "r1"},
			{Name: "a-no-ts", Revision: "r1"},
		})

		// Both share the fallback sort stamp; b-no-ts was inserted first.
		Expect(names(store.Snapshot())).To(Equal([]string{"b-no-ts", "a-no-ts"}))
	})

	It("returns the same order on repeated calls", func() {
		first := names(store.Snapshot())
		for range 5 {
			Expect(names(store.Snapshot())).To(Equal(first))
		}
	})

	It("does not jitter while entries hydrate", func() {
		before := names(store.Snapshot())

		rev, _ := store.HydrationTarget("mid")
		// Hydrated content carries the same last-turn timestamp.
		Expect(store.CompleteHydration(ctx, "mid", rev, []transcript.Turn{
			{Role: transcript.RoleUser, Text: "hi", Timestamp: at(10)},
		})).To(BeTrue())

		Expect(names(store.Snapshot())).To(Equal(before))
	})
})

var _ = Describe("FilterSorted", func() {
	var (
		store *catalog.Store
		ctx   context.Context
	)

	at := func(day int) time.Time {
		return time.Date(2025, 6, day, 12, 0, 0, 0, time.UTC)
	}

	BeforeEach(func() {
		store = catalog.NewStore()
		ctx = context.Background()
		store.Refresh(ctx, "alice", []backend.LogInfo{
			{Name: "log-a", Revision: "r1", ApproxCount: 2, LastTurnAt: at(1)},
			{Name: "log-b", Revision: "r1", ApproxCount: 10, LastTurnAt: at(10)},
			{Name: "log-c", Revision: "r1", ApproxCount: 50, LastTurnAt: at(20)},
		})
		store.SetTags("log-a", []string{"favorite", "short"})
		store.SetTags("log-b", []string{"favorite"})
	})

	It("ORs tag membership", func() {
		got := store.FilterSorted(catalog.Filter{Tags: []string{"short", "favorite"}}, catalog.SortName)
		Expect(names(got)).To(Equal([]string{"log-a", "log-b"}))
	})

	It("ANDs tags against the date range", func() {
		got := store.FilterSorted(catalog.Filter{
			Tags: []string{"favorite"},
			From: at(5),
		}, catalog.SortRecency)
		Expect(names(got)).To(Equal([]string{"log-b"}))
	})

	It("applies the message-count range", func() {
		got := store.FilterSorted(catalog.Filter{MinMessages: 5, MaxMessages: 20}, catalog.SortRecency)
		Expect(names(got)).To(Equal([]string{"log-b"}))
	})

	It("sorts by message count when requested", func() {
		got := store.FilterSorted(catalog.Filter{}, catalog.SortMessageCount)
		Expect(names(got)).To(Equal([]string{"log-c", "log-b", "log-a"}))
	})

	It("returns isolated copies", func() {
		got := store.FilterSorted(catalog.Filter{}, catalog.SortRecency)
		got[0].Name = "mutated"

		fresh, ok := store.Get("log-c")
		Expect(ok).To(BeTrue())
		Expect(fresh.Name).To(Equal("log-c"))
	})
})

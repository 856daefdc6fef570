package catalog_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/spool/pkg/backend"
	cacheinmemory "github.com/papercomputeco/spool/pkg/cache/inmemory"
	"github.com/papercomputeco/spool/pkg/catalog"
	"github.com/papercomputeco/spool/pkg/transcript"
)

func turns(texts ...string) []transcript.Turn {
	out := make([]transcript.Turn, len(texts))
	for i, text := range texts {
		role := transcript.RoleUser
		if i%2 == 1 {
			role = transcript.RoleOther
		}
		out[i] = transcript.Turn{Role: role, Text: text}
	}
	return out
}

var _ = Describe("Store.Refresh", func() {
	var (
		store *catalog.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		store = catalog.NewStore()
		ctx = context.Background()
	})

	It("creates metadata-only entries for unknown names", func() {
		result := store.Refresh(ctx, "alice", []backend.LogInfo{
			{Name: "log-a", Revision: "r1", ApproxCount: 4},
		})

		Expect(result.Changed).To(BeTrue())
		Expect(result.Pending).To(Equal([]string{"log-a"}))

		entry, ok := store.Get("log-a")
		Expect(ok).To(BeTrue())
		Expect(entry.Hydrated).To(BeFalse())
		Expect(entry.MessageCount).To(Equal(4))
		Expect(entry.DivergesAt).To(Equal(catalog.DivergenceUnset))
	})

	It("is idempotent for an unchanged list", func() {
		list := []backend.LogInfo{{Name: "log-a", Revision: "r1"}}

		first := store.Refresh(ctx, "alice", list)
		Expect(first.Changed).To(BeTrue())
		version := store.Version()

		second := store.Refresh(ctx, "alice", list)
		Expect(second.Changed).To(BeFalse())
		Expect(store.Version()).To(Equal(version))
	})

	It("strictly increases the version on observable mutations", func() {
		v0 := store.Version()

		store.Refresh(ctx, "alice", []backend.LogInfo{{Name: "log-a", Revision: "r1"}})
		v1 := store.Version()
		Expect(v1).To(BeNumerically(">", v0))

		store.Refresh(ctx, "alice", nil)
		v2 := store.Version()
		Expect(v2).To(BeNumerically(">", v1))
	})

	It("keeps un-hydrated entries pending across refreshes", func() {
		list := []backend.LogInfo{{Name: "log-a", Revision: "r1"}}

		store.Refresh(ctx, "alice", list)
		second := store.Refresh(ctx, "alice", list)

		Expect(second.Pending).To(Equal([]string{"log-a"}))
	})

	It("updates trailing timestamps without touching messages", func() {
		store.Refresh(ctx, "alice", []backend.LogInfo{{Name: "log-a", Revision: "r1"}})
		Expect(store.CompleteHydration(ctx, "log-a", "r1", turns("hi", "hello"))).To(BeTrue())

		later := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
		result := store.Refresh(ctx, "alice", []backend.LogInfo{
			{Name: "log-a", Revision: "r1", LastTurnAt: later},
		})

		Expect(result.Changed).To(BeTrue())
		entry, _ := store.Get("log-a")
		Expect(entry.Hydrated).To(BeTrue())
		Expect(entry.Messages).To(HaveLen(2))
		Expect(entry.LastAt).To(Equal(later))
	})

	It("invalidates content when the revision changes", func() {
		store.Refresh(ctx, "alice", []backend.LogInfo{{Name: "log-a", Revision: "r1"}})
		Expect(store.CompleteHydration(ctx, "log-a", "r1", turns("hi", "hello"))).To(BeTrue())

		result := store.Refresh(ctx, "alice", []backend.LogInfo{
			{Name: "log-a", Revision: "r2"},
		})

		Expect(result.Pending).To(Equal([]string{"log-a"}))
		entry, _ := store.Get("log-a")
		Expect(entry.Hydrated).To(BeFalse())
		Expect(entry.Messages).To(BeEmpty())
		Expect(entry.Revision).To(Equal("r2"))
	})

	It("removes entries the backend no longer reports", func() {
		store.Refresh(ctx, "alice", []backend.LogInfo{
			{Name: "log-a", Revision: "r1"},
			{Name: "log-b", Revision: "r1"},
		})

		store.Refresh(ctx, "alice", []backend.LogInfo{{Name: "log-b", Revision: "r1"}})

		_, ok := store.Get("log-a")
		Expect(ok).To(BeFalse())
		Expect(store.Len()).To(Equal(1))
	})

	It("clears the map when the subject changes", func() {
		store.Refresh(ctx, "alice", []backend.LogInfo{{Name: "log-a", Revision: "r1"}})

		store.Refresh(ctx, "bob", []backend.LogInfo{{Name: "log-b", Revision: "r1"}})

		Expect(store.Subject()).To(Equal("bob"))
		_, ok := store.Get("log-a")
		Expect(ok).To(BeFalse())
		_, ok = store.Get("log-b")
		Expect(ok).To(BeTrue())
	})

	Context("with a persistent cache", func() {
		var cache *cacheinmemory.Driver

		BeforeEach(func() {
			cache = cacheinmemory.NewDriver()
			store = catalog.NewStore(catalog.WithCache(cache))
		})

		It("adopts cached hydrated entries with a matching revision", func() {
			msgs := catalog.MessagesFromTurns("log-a", turns("hi", "hello"))
			Expect(cache.Write(ctx, "alice", &catalog.Entry{
				Name:         "log-a",
				Revision:     "r1",
				Messages:     msgs,
				MessageCount: len(msgs),
				Hydrated:     true,
			})).To(Succeed())

			result := store.Refresh(ctx, "alice", []backend.LogInfo{
				{Name: "log-a", Revision: "r1"},
			})

			Expect(result.Pending).To(BeEmpty())
			entry, _ := store.Get("log-a")
			Expect(entry.Hydrated).To(BeTrue())
			Expect(entry.Messages).To(HaveLen(2))
		})

		It("ignores cached entries with a stale revision", func() {
			Expect(cache.Write(ctx, "alice", &catalog.Entry{
				Name: "log-a", Revision: "r0", Hydrated: true,
			})).To(Succeed())

			result := store.Refresh(ctx, "alice", []backend.LogInfo{
				{Name: "log-a", Revision: "r1"},
			})

			Expect(result.Pending).To(Equal([]string{"log-a"}))
		})

		It("re-checks the cache after a revision change", func() {
			store.Refresh(ctx, "alice", []backend.LogInfo{{Name: "log-a", Revision: "r1"}})
			Expect(store.CompleteHydration(ctx, "log-a", "r1", turns("hi"))).To(BeTrue())

			msgs := catalog.MessagesFromTurns("log-a", turns("hi", "hello", "again"))
			Expect(cache.Write(ctx, "alice", &catalog.Entry{
				Name:         "log-a",
				Revision:     "r2",
				Messages:     msgs,
				MessageCount: len(msgs),
				Hydrated:     true,
			})).To(Succeed())

			result := store.Refresh(ctx, "alice", []backend.LogInfo{
				{Name: "log-a", Revision: "r2"},
			})

			Expect(result.Pending).To(BeEmpty())
			entry, _ := store.Get("log-a")
			Expect(entry.Hydrated).To(BeTrue())
			Expect(entry.Messages).To(HaveLen(3))
		})

		It("deletes cache records for removed entries", func() {
			store.Refresh(ctx, "alice", []backend.LogInfo{{Name: "log-a", Revision: "r1"}})
			Expect(store.CompleteHydration(ctx, "log-a", "r1", turns("hi"))).To(BeTrue())
			Expect(cache.Len("alice")).To(Equal(1))

			store.Refresh(ctx, "alice", nil)

			Expect(cache.Len("alice")).To(BeZero())
		})
	})
})

var _ = Describe("Store.CompleteHydration", func() {
	var (
		store *catalog.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		store = catalog.NewStore()
		ctx = context.Background()
		store.Refresh(ctx, "alice", []backend.LogInfo{{Name: "log-a", Revision: "r1"}})
	})

	It("applies content when the revision still matches", func() {
		rev, ok := store.HydrationTarget("log-a")
		Expect(ok).To(BeTrue())

		Expect(store.CompleteHydration(ctx, "log-a", rev, turns("hi", "hello"))).To(BeTrue())

		entry, _ := store.Get("log-a")
		Expect(entry.Hydrated).To(BeTrue())
		Expect(entry.MessageCount).To(Equal(2))
		Expect(entry.Messages[1].Ordinal).To(Equal(1))
	})

	It("discards stale results after a concurrent revision change", func() {
		rev, _ := store.HydrationTarget("log-a")

		// Revision moves while the fetch is in flight.
		store.Refresh(ctx, "alice", []backend.LogInfo{{Name: "log-a", Revision: "r2"}})

		Expect(store.CompleteHydration(ctx, "log-a", rev, turns("stale"))).To(BeFalse())

		entry, _ := store.Get("log-a")
		Expect(entry.Hydrated).To(BeFalse())
		Expect(entry.Messages).To(BeEmpty())
	})

	It("discards results for removed entries", func() {
		rev, _ := store.HydrationTarget("log-a")
		store.Refresh(ctx, "alice", nil)

		Expect(store.CompleteHydration(ctx, "log-a", rev, turns("stale"))).To(BeFalse())
	})

	It("reports no target for hydrated entries", func() {
		rev, _ := store.HydrationTarget("log-a")
		Expect(store.CompleteHydration(ctx, "log-a", rev, turns("hi"))).To(BeTrue())

		_, ok := store.HydrationTarget("log-a")
		Expect(ok).To(BeFalse())
	})

	It("derives first and last timestamps from content", func() {
		early := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
		late := time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)

		rev, _ := store.HydrationTarget("log-a")
		Expect(store.CompleteHydration(ctx, "log-a", rev, []transcript.Turn{
			{Role: transcript.RoleUser, Text: "hi", Timestamp: early},
			{Role: transcript.RoleOther, Text: "hello", Timestamp: late},
		})).To(BeTrue())

		entry, _ := store.Get("log-a")
		Expect(entry.FirstAt).To(Equal(early))
		Expect(entry.LastAt).To(Equal(late))
		Expect(entry.SortStamp).To(Equal(late.UnixMilli()))
	})
})

var _ = Describe("Store.UpdateEntry", func() {
	var (
		store *catalog.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		store = catalog.NewStore()
		ctx = context.Background()
	})

	It("creates a hydrated entry when the backend has not reported it", func() {
		Expect(store.UpdateEntry(ctx, "log-live", turns("hi", "hello"))).To(BeTrue())

		entry, ok := store.Get("log-live")
		Expect(ok).To(BeTrue())
		Expect(entry.Hydrated).To(BeTrue())
		Expect(entry.Revision).To(HavePrefix("content-"))
	})

	It("is a no-op for identical content", func() {
		store.UpdateEntry(ctx, "log-live", turns("hi"))
		version := store.Version()

		Expect(store.UpdateEntry(ctx, "log-live", turns("hi"))).To(BeFalse())
		Expect(store.Version()).To(Equal(version))
	})

	It("replaces content and bumps the version when content changed", func() {
		store.UpdateEntry(ctx, "log-live", turns("hi"))
		version := store.Version()

		Expect(store.UpdateEntry(ctx, "log-live", turns("hi", "hello"))).To(BeTrue())
		Expect(store.Version()).To(BeNumerically(">", version))

		entry, _ := store.Get("log-live")
		Expect(entry.MessageCount).To(Equal(2))
	})
})

var _ = Describe("Store.FindByContent", func() {
	It("matches hydrated entries by first and last text", func() {
		store := catalog.NewStore()
		ctx := context.Background()
		store.UpdateEntry(ctx, "log-a", turns("hello there", "mid", "goodbye"))

		entry, ok := store.FindByContent("  hello   there ", "goodbye")
		Expect(ok).To(BeTrue())
		Expect(entry.Name).To(Equal("log-a"))

		_, ok = store.FindByContent("hello there", "something else")
		Expect(ok).To(BeFalse())
	})
})

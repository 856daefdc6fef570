package hydrate_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/spool/pkg/backend"
	backendinmemory "github.com/papercomputeco/spool/pkg/backend/inmemory"
	"github.com/papercomputeco/spool/pkg/catalog"
	"github.com/papercomputeco/spool/pkg/hydrate"
	"github.com/papercomputeco/spool/pkg/transcript"
)

func rawTurns(texts ...string) []transcript.RawTurn {
	out := make([]transcript.RawTurn, len(texts))
	for i, text := range texts {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		out[i] = transcript.RawTurn{Role: role, Text: text}
	}
	return out
}

var _ = Describe("Scheduler", func() {
	var (
		store *catalog.Store
		port  *backendinmemory.Port
		sched *hydrate.Scheduler
		ctx   context.Context
	)

	seed := func(subject string, count int) []backend.LogInfo {
		infos := make([]backend.LogInfo, count)
		for i := range count {
			name := fmt.Sprintf("log-%02d", i)
			infos[i] = backend.LogInfo{Name: name, Revision: "r1"}
			port.SetLog(subject, infos[i], rawTurns("hi "+name, "hello "+name))
		}
		return infos
	}

	refreshAndEnqueue := func(subject string) {
		list, err := port.ListLogs(ctx, subject)
		Expect(err).NotTo(HaveOccurred())
		result := store.Refresh(ctx, subject, list)
		sched.Reset(subject)
		for _, name := range result.Pending {
			sched.Enqueue(name)
		}
	}

	BeforeEach(func() {
		store = catalog.NewStore()
		port = backendinmemory.NewPort()
		sched = hydrate.NewScheduler(store, port, hydrate.WithBatchSize(3))
		ctx = context.Background()
	})

	It("hydrates every pending entry exactly once", func() {
		seed("alice", 10)
		refreshAndEnqueue("alice")

		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())

		Expect(sched.Progress()).To(Equal(hydrate.Progress{Loaded: 10, Total: 10}))
		for i := range 10 {
			name := fmt.Sprintf("log-%02d", i)
			entry, ok := store.Get(name)
			Expect(ok).To(BeTrue())
			Expect(entry.Hydrated).To(BeTrue(), "entry %s", name)
			Expect(port.FetchCalls("alice", name)).To(Equal(1), "fetches for %s", name)
		}
	})

	It("reports monotonic progress up to completion", func() {
		seed("alice", 9)

		var mu sync.Mutex
		var seen []hydrate.Progress
		unsubscribe := sched.Subscribe(func(p hydrate.Progress) {
			mu.Lock()
			seen = append(seen, p)
			mu.Unlock()
		})
		defer unsubscribe()

		refreshAndEnqueue("alice")
		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())

		mu.Lock()
		defer mu.Unlock()
		Expect(seen).NotTo(BeEmpty())
		prev := 0
		for _, p := range seen {
			Expect(p.Loaded).To(BeNumerically(">=", prev))
			prev = p.Loaded
		}
		Expect(seen[len(seen)-1]).To(Equal(hydrate.Progress{Loaded: 9, Total: 9}))
	})

	It("deduplicates enqueues for the same name", func() {
		seed("alice", 1)
		port.FetchDelay = 50 * time.Millisecond
		refreshAndEnqueue("alice")

		sched.Enqueue("log-00")
		sched.Enqueue("log-00")

		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())
		Expect(port.FetchCalls("alice", "log-00")).To(Equal(1))
	})

	It("restarts itself when names arrive after the loop drained", func() {
		seed("alice", 2)
		refreshAndEnqueue("alice")
		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())

		// A new log shows up after the loop exited.
		info := backend.LogInfo{Name: "log-late", Revision: "r1"}
		port.SetLog("alice", info, rawTurns("late", "reply"))
		list, err := port.ListLogs(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		result := store.Refresh(ctx, "alice", list)
		Expect(result.Pending).To(ContainElement("log-late"))

		for _, name := range result.Pending {
			sched.Enqueue(name)
		}

		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())
		entry, _ := store.Get("log-late")
		Expect(entry.Hydrated).To(BeTrue())
	})

	It("leaves failed fetches un-hydrated and eligible for retry", func() {
		seed("alice", 2)
		port.FailFetches["log-01"] = true
		refreshAndEnqueue("alice")

		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())

		entry, _ := store.Get("log-01")
		Expect(entry.Hydrated).To(BeFalse())

		// The next refresh re-reports it as pending; a retry succeeds.
		port.FailFetches["log-01"] = false
		list, _ := port.ListLogs(ctx, "alice")
		result := store.Refresh(ctx, "alice", list)
		Expect(result.Pending).To(Equal([]string{"log-01"}))

		for _, name := range result.Pending {
			sched.Enqueue(name)
		}
		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())

		entry, _ = store.Get("log-01")
		Expect(entry.Hydrated).To(BeTrue())
	})

	It("discards a stale fetch and re-queues instead of overwriting", func() {
		seed("alice", 1)
		gate := make(chan struct{})
		port.FetchGate = gate
		refreshAndEnqueue("alice")

		// Wait until the fetch is in flight, then move the revision.
		Eventually(func() int { return port.FetchCalls("alice", "log-00") }, "2s", "10ms").Should(Equal(1))
		port.SetLog("alice",
			backend.LogInfo{Name: "log-00", Revision: "r2"},
			rawTurns("fresh", "content", "here"))
		list, _ := port.ListLogs(ctx, "alice")
		store.Refresh(ctx, "alice", list)

		// Release the stale fetch, then the retry.
		gate <- struct{}{}
		Eventually(func() int { return port.FetchCalls("alice", "log-00") }, "2s", "10ms").Should(Equal(2))
		gate <- struct{}{}

		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())

		entry, _ := store.Get("log-00")
		Expect(entry.Hydrated).To(BeTrue())
		Expect(entry.Revision).To(Equal("r2"))
		Expect(entry.Messages).To(HaveLen(3))
	})

	It("recovers when a synchronous fetch settles stale after the loop drained", func() {
		// Batch size 1: the loop holds log-00 at the gate while log-01
		// waits in the queue.
		sched = hydrate.NewScheduler(store, port, hydrate.WithBatchSize(1))
		seed("alice", 2)
		gate := make(chan struct{})
		port.FetchGate = gate
		refreshAndEnqueue("alice")

		Eventually(func() int { return port.FetchCalls("alice", "log-00") }, "2s", "10ms").Should(Equal(1))
		port.FetchGate = nil
		port.FetchDelay = 300 * time.Millisecond

		result := make(chan bool, 1)
		go func() { result <- sched.HydrateNow(ctx, "log-01") }()
		Eventually(func() int { return port.FetchCalls("alice", "log-01") }, "2s", "10ms").Should(Equal(1))

		// Move log-01's revision while its synchronous fetch is delayed in
		// flight, then release log-00 so the loop drains and exits before
		// the stale result settles.
		port.SetLog("alice",
			backend.LogInfo{Name: "log-01", Revision: "r2"},
			rawTurns("fresh", "content", "here"))
		list, _ := port.ListLogs(ctx, "alice")
		store.Refresh(ctx, "alice", list)
		gate <- struct{}{}

		Expect(<-result).To(BeFalse())

		// The stale result re-queues log-01; the retry must actually run.
		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())
		entry, _ := store.Get("log-01")
		Expect(entry.Hydrated).To(BeTrue())
		Expect(entry.Revision).To(Equal("r2"))
		Expect(port.FetchCalls("alice", "log-01")).To(Equal(2))
	})

	It("abandons in-flight work when the subject switches", func() {
		seed("alice", 1)
		gate := make(chan struct{})
		port.FetchGate = gate
		refreshAndEnqueue("alice")

		Eventually(func() int { return port.FetchCalls("alice", "log-00") }, "2s", "10ms").Should(Equal(1))

		// Switch subjects while alice's fetch is held in flight. The new
		// subject has a log with the same name.
		port.FetchGate = nil
		port.SetLog("bob",
			backend.LogInfo{Name: "log-00", Revision: "b1"},
			rawTurns("bob says", "bob hears"))
		refreshAndEnqueue("bob")
		close(gate)

		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())

		entry, ok := store.Get("log-00")
		Expect(ok).To(BeTrue())
		Expect(entry.Revision).To(Equal("b1"))
		Expect(entry.Messages[0].Text).To(Equal("bob says"))
	})

	It("hydrates a single log synchronously via HydrateNow", func() {
		seed("alice", 3)
		list, _ := port.ListLogs(ctx, "alice")
		store.Refresh(ctx, "alice", list)
		sched.Reset("alice")

		Expect(sched.HydrateNow(ctx, "log-01")).To(BeTrue())

		entry, _ := store.Get("log-01")
		Expect(entry.Hydrated).To(BeTrue())
		Expect(port.FetchCalls("alice", "log-01")).To(Equal(1))
	})

	It("returns true from HydrateNow for already-hydrated entries", func() {
		seed("alice", 1)
		refreshAndEnqueue("alice")
		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())

		Expect(sched.HydrateNow(ctx, "log-00")).To(BeTrue())
		Expect(port.FetchCalls("alice", "log-00")).To(Equal(1))
	})

	It("moves a prioritized name to the front of the queue", func() {
		// Batch size 1 forces strictly sequential fetch order.
		sched = hydrate.NewScheduler(store, port, hydrate.WithBatchSize(1))
		seed("alice", 5)
		list, _ := port.ListLogs(ctx, "alice")
		store.Refresh(ctx, "alice", list)
		sched.Reset("alice")

		gate := make(chan struct{})
		port.FetchGate = gate

		// The loop pops log-00 immediately and blocks at the gate.
		sched.Enqueue("log-00")
		Eventually(port.TotalFetchCalls, "2s", "10ms").Should(Equal(1))

		for _, name := range []string{"log-01", "log-02", "log-03", "log-04"} {
			sched.Enqueue(name)
		}
		sched.Prioritize("log-04")

		gate <- struct{}{} // release first fetch
		Eventually(func() int { return port.FetchCalls("alice", "log-04") }, "2s", "10ms").Should(Equal(1))
		Expect(port.FetchCalls("alice", "log-01")).To(BeZero())

		port.FetchGate = nil
		close(gate)
		Eventually(sched.Complete, "2s", "10ms").Should(BeTrue())
	})
})

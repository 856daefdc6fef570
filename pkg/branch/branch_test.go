package branch_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/spool/pkg/branch"
	"github.com/papercomputeco/spool/pkg/catalog"
	"github.com/papercomputeco/spool/pkg/transcript"
)

func messages(texts ...string) []catalog.Message {
	out := make([]catalog.Message, len(texts))
	for i, text := range texts {
		role := transcript.RoleUser
		if i%2 == 1 {
			role = transcript.RoleOther
		}
		out[i] = catalog.Message{LogName: "test", Ordinal: i, Role: role, Text: text}
	}
	return out
}

var _ = Describe("DivergencePoint", func() {
	It("finds the first differing turn", func() {
		ref := messages("a", "b", "c", "d")
		candidate := messages("a", "b", "x", "y")

		point, ok := branch.DivergencePoint(ref, candidate)
		Expect(ok).To(BeTrue())
		Expect(point).To(Equal(2))
	})

	It("treats a strict prefix as diverging at the shared length", func() {
		ref := messages("a", "b", "c", "d", "e")
		candidate := messages("a", "b", "c")

		point, ok := branch.DivergencePoint(ref, candidate)
		Expect(ok).To(BeTrue())
		Expect(point).To(Equal(3))

		// Symmetric when the reference is the shorter one.
		point, ok = branch.DivergencePoint(candidate, ref)
		Expect(ok).To(BeTrue())
		Expect(point).To(Equal(3))
	})

	It("reports no relation when the first turns differ", func() {
		ref := messages("a", "b")
		candidate := messages("z", "b")

		_, ok := branch.DivergencePoint(ref, candidate)
		Expect(ok).To(BeFalse())
	})

	It("reports no relation for logs shorter than two turns", func() {
		_, ok := branch.DivergencePoint(messages("a"), messages("a", "b"))
		Expect(ok).To(BeFalse())

		_, ok = branch.DivergencePoint(messages("a", "b"), messages("a"))
		Expect(ok).To(BeFalse())

		_, ok = branch.DivergencePoint(nil, messages("a", "b"))
		Expect(ok).To(BeFalse())
	})

	It("compares normalized text", func() {
		ref := messages("  hello   world ", "b", "c")
		candidate := messages("hello world", "b", "d")

		point, ok := branch.DivergencePoint(ref, candidate)
		Expect(ok).To(BeTrue())
		Expect(point).To(Equal(2))
	})
})

var _ = Describe("Detector", func() {
	var (
		store    *catalog.Store
		detector *branch.Detector
		ctx      context.Context
		base     time.Time
	)

	// seed writes a fully hydrated entry whose last turn carries the given
	// timestamp offset, so recency ordering is deterministic.
	seed := func(name string, offset time.Duration, texts ...string) {
		turns := make([]transcript.Turn, len(texts))
		for i, text := range texts {
			role := transcript.RoleUser
			if i%2 == 1 {
				role = transcript.RoleOther
			}
			turns[i] = transcript.Turn{Role: role, Text: text}
		}
		turns[len(turns)-1].Timestamp = base.Add(offset)
		Expect(store.UpdateEntry(ctx, name, turns)).To(BeTrue())
	}

	BeforeEach(func() {
		store = catalog.NewStore()
		detector = branch.NewDetector(store)
		ctx = context.Background()
		base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	Describe("DetectAll", func() {
		It("stores divergence points relative to the reference", func() {
			seed("ref", 0, "a", "b", "c", "d")
			seed("twin", time.Minute, "a", "b", "x", "y")
			seed("prefix", 2*time.Minute, "a", "b", "c")
			seed("unrelated", 3*time.Minute, "z", "b", "c")

			detector.DetectAll("ref")

			twin, _ := store.Get("twin")
			Expect(twin.DivergesAt).To(Equal(2))

			prefix, _ := store.Get("prefix")
			Expect(prefix.DivergesAt).To(Equal(3))

			unrelated, _ := store.Get("unrelated")
			Expect(unrelated.DivergesAt).To(Equal(catalog.DivergenceUnset))

			ref, _ := store.Get("ref")
			Expect(ref.DivergesAt).To(Equal(catalog.DivergenceUnset))
		})

		It("clears stale facts when the reference changes", func() {
			seed("ref", 0, "a", "b", "c")
			seed("twin", time.Minute, "a", "b", "x")
			seed("other", 2*time.Minute, "q", "r", "s")

			detector.DetectAll("ref")
			twin, _ := store.Get("twin")
			Expect(twin.DivergesAt).To(Equal(1))

			detector.DetectAll("other")
			twin, _ = store.Get("twin")
			Expect(twin.DivergesAt).To(Equal(catalog.DivergenceUnset))
		})

		It("resets everything for an unknown or short reference", func() {
			seed("ref", 0, "a", "b", "c")
			seed("twin", time.Minute, "a", "b", "x")
			detector.DetectAll("ref")

			detector.DetectAll("no-such-log")

			twin, _ := store.Get("twin")
			Expect(twin.DivergesAt).To(Equal(catalog.DivergenceUnset))
		})

		It("bumps the catalog version once when facts change", func() {
			seed("ref", 0, "a", "b", "c")
			seed("twin", time.Minute, "a", "b", "x")
			before := store.Version()

			detector.DetectAll("ref")
			Expect(store.Version()).To(Equal(before + 1))

			// Recomputing identical facts is not an observable change.
			detector.DetectAll("ref")
			Expect(store.Version()).To(Equal(before + 1))
		})
	})

	Describe("SiblingsOf", func() {
		It("returns stored siblings most recent first with suffixes", func() {
			seed("ref", 0, "a", "b", "c", "d")
			seed("older", time.Minute, "a", "b", "x", "y")
			seed("newer", time.Hour, "a", "b", "z")
			detector.DetectAll("ref")

			siblings := detector.SiblingsOf("ref", 0)
			Expect(siblings).To(HaveLen(2))

			Expect(siblings[0].Name).To(Equal("newer"))
			Expect(siblings[0].DivergesAt).To(Equal(2))
			Expect(siblings[0].Suffix).To(HaveLen(1))
			Expect(siblings[0].Suffix[0].Text).To(Equal("z"))

			Expect(siblings[1].Name).To(Equal("older"))
			Expect(siblings[1].DivergesAt).To(Equal(2))
			Expect(siblings[1].Suffix).To(HaveLen(2))
		})

		It("truncates to the limit after ordering", func() {
			seed("ref", 0, "a", "b", "c")
			seed("s1", time.Minute, "a", "b", "x")
			seed("s2", 2*time.Minute, "a", "b", "y")
			seed("s3", 3*time.Minute, "a", "b", "z")
			detector.DetectAll("ref")

			siblings := detector.SiblingsOf("ref", 2)
			Expect(siblings).To(HaveLen(2))
			Expect(siblings[0].Name).To(Equal("s3"))
			Expect(siblings[1].Name).To(Equal("s2"))
		})

		It("yields an empty suffix for a strict-prefix sibling", func() {
			seed("ref", 0, "a", "b", "c", "d")
			seed("prefix", time.Minute, "a", "b", "c")
			detector.DetectAll("ref")

			siblings := detector.SiblingsOf("ref", 0)
			Expect(siblings).To(HaveLen(1))
			Expect(siblings[0].DivergesAt).To(Equal(3))
			Expect(siblings[0].Suffix).To(BeEmpty())
		})
	})

	Describe("SiblingsOfArbitrary", func() {
		It("computes divergence against a non-reference base", func() {
			seed("ref", 0, "a", "b", "c")
			seed("base", time.Minute, "p", "q", "r", "s")
			seed("cousin", 2*time.Minute, "p", "q", "t")
			detector.DetectAll("ref")

			siblings := detector.SiblingsOfArbitrary("base", 0)
			Expect(siblings).To(HaveLen(1))
			Expect(siblings[0].Name).To(Equal("cousin"))
			Expect(siblings[0].DivergesAt).To(Equal(2))

			// Stored facts stay untouched.
			cousin, _ := store.Get("cousin")
			Expect(cousin.DivergesAt).To(Equal(catalog.DivergenceUnset))
		})

		It("returns nothing for an unknown base", func() {
			seed("only", 0, "a", "b")
			Expect(detector.SiblingsOfArbitrary("missing", 0)).To(BeEmpty())
		})
	})
})

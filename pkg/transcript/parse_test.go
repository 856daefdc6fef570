package transcript_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/spool/pkg/transcript"
)

var _ = Describe("Normalize", func() {
	It("trims leading and trailing whitespace", func() {
		Expect(transcript.Normalize("  hello  ")).To(Equal("hello"))
	})

	It("collapses internal whitespace runs", func() {
		Expect(transcript.Normalize("hello   there\n\tfriend")).To(Equal("hello there friend"))
	})

	It("returns empty for whitespace-only input", func() {
		Expect(transcript.Normalize(" \n\t ")).To(Equal(""))
	})
})

var _ = Describe("NormalizeRole", func() {
	It("maps user to user", func() {
		Expect(transcript.NormalizeRole("user")).To(Equal(transcript.RoleUser))
		Expect(transcript.NormalizeRole(" User ")).To(Equal(transcript.RoleUser))
	})

	It("maps everything else to other", func() {
		Expect(transcript.NormalizeRole("assistant")).To(Equal(transcript.RoleOther))
		Expect(transcript.NormalizeRole("Seraphina")).To(Equal(transcript.RoleOther))
		Expect(transcript.NormalizeRole("")).To(Equal(transcript.RoleOther))
	})
})

var _ = Describe("ParseTurns", func() {
	It("preserves order and timestamps", func() {
		ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		turns := transcript.ParseTurns([]transcript.RawTurn{
			{Role: "user", Text: "hi", Timestamp: ts},
			{Role: "assistant", Text: "hello"},
		})

		Expect(turns).To(HaveLen(2))
		Expect(turns[0].Role).To(Equal(transcript.RoleUser))
		Expect(turns[0].Timestamp).To(Equal(ts))
		Expect(turns[1].Role).To(Equal(transcript.RoleOther))
	})

	It("skips records with no usable text", func() {
		turns := transcript.ParseTurns([]transcript.RawTurn{
			{Role: "user", Text: "hi"},
			{Role: "assistant", Text: "   "},
			{Role: "assistant", Text: "there"},
		})

		Expect(turns).To(HaveLen(2))
		Expect(turns[1].Text).To(Equal("there"))
	})

	It("falls back to the first non-empty variant for text", func() {
		turns := transcript.ParseTurns([]transcript.RawTurn{
			{Role: "assistant", Variants: []string{"", "second swipe"}},
		})

		Expect(turns).To(HaveLen(1))
		Expect(turns[0].Text).To(Equal("second swipe"))
	})

	It("clamps out-of-range active variants", func() {
		turns := transcript.ParseTurns([]transcript.RawTurn{
			{Role: "assistant", Text: "a", Variants: []string{"a", "b"}, ActiveVariant: 7},
			{Role: "assistant", Text: "c", Variants: []string{"c"}, ActiveVariant: -1},
		})

		Expect(turns[0].ActiveVariant).To(Equal(0))
		Expect(turns[1].ActiveVariant).To(Equal(0))
	})

	It("resolves the active text through variants", func() {
		turns := transcript.ParseTurns([]transcript.RawTurn{
			{Role: "assistant", Text: "a", Variants: []string{"a", "b"}, ActiveVariant: 1},
		})

		Expect(turns[0].ActiveText()).To(Equal("b"))
	})
})

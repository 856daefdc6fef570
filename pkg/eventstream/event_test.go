package eventstream_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/spool/pkg/eventstream"
)

var _ = Describe("HydrationProgressEvent", func() {
	It("populates schema fields and a unique event id", func() {
		a := eventstream.NewHydrationProgressEvent("alice", 3, 2, 10, false)
		b := eventstream.NewHydrationProgressEvent("alice", 3, 3, 10, false)

		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(a.EventType).To(Equal(eventstream.EventTypeHydrationProgress))
		Expect(a.EventID).NotTo(BeEmpty())
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.EmittedAt).NotTo(BeZero())
	})

	It("marshals with the expected top-level keys", func() {
		event := eventstream.NewHydrationProgressEvent("alice", 1, 5, 5, true)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var parsed map[string]any
		Expect(json.Unmarshal(payload, &parsed)).To(Succeed())
		Expect(parsed).To(HaveKey("schema_version"))
		Expect(parsed).To(HaveKey("event_type"))
		Expect(parsed).To(HaveKey("event_id"))
		Expect(parsed).To(HaveKey("emitted_at"))
		Expect(parsed["subject"]).To(Equal("alice"))
		Expect(parsed["loaded"]).To(BeNumerically("==", 5))
		Expect(parsed["total"]).To(BeNumerically("==", 5))
		Expect(parsed["complete"]).To(BeTrue())
	})
})

package store_test

import (
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/store/storetest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = storetest.DescribeBackend("memory", func() store.Backend {
	return store.NewMemory()
})

var _ = Describe("MatchField", func() {
	It("compares string fields by value and others by JSON text", func() {
		doc := []byte(`{"group_id":"g1","n":3,"ok":true}`)
		Expect(store.MatchField(doc, "group_id", "g1")).To(BeTrue())
		Expect(store.MatchField(doc, "group_id", "g2")).To(BeFalse())
		Expect(store.MatchField(doc, "n", "3")).To(BeTrue())
		Expect(store.MatchField(doc, "ok", "true")).To(BeTrue())
		Expect(store.MatchField(doc, "missing", "")).To(BeFalse())
		Expect(store.MatchField([]byte(`not json`), "n", "3")).To(BeFalse())
	})
})

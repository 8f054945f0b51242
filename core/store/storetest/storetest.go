// Package storetest holds the behaviour every store.Backend must share.
package storetest

import (
	"context"
	"errors"

	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// DescribeBackend registers the shared backend specs. newBackend is called
// once per spec.
func DescribeBackend(name string, newBackend func() store.Backend) bool {
	return Describe(name+" backend", func() {
		var (
			ctx     context.Context
			backend store.Backend
			repo    *store.Repository
		)

		BeforeEach(func() {
			ctx = context.Background()
			backend = newBackend()
			repo = store.NewRepository(backend)
		})

		AfterEach(func() {
			Expect(backend.Close()).To(Succeed())
		})

		It("returns ErrNotFound for missing keys", func() {
			_, err := backend.Get(ctx, store.Agents, "missing")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})

		It("stores, finds and deletes documents", func() {
			Expect(backend.Put(ctx, "things", "1", []byte(`{"id":"1","group_id":"g1","n":1}`))).To(Succeed())
			Expect(backend.Put(ctx, "things", "2", []byte(`{"id":"2","group_id":"g2","n":2}`))).To(Succeed())
			Expect(backend.Put(ctx, "things", "3", []byte(`{"id":"3","group_id":"g1","n":3}`))).To(Succeed())

			doc, err := backend.Get(ctx, "things", "2")
			Expect(err).ToNot(HaveOccurred())
			Expect(doc).To(MatchJSON(`{"id":"2","group_id":"g2","n":2}`))

			found, err := backend.Find(ctx, "things", "group_id", "g1")
			Expect(err).ToNot(HaveOccurred())
			Expect(found).To(HaveLen(2))

			everything, err := backend.All(ctx, "things")
			Expect(err).ToNot(HaveOccurred())
			Expect(everything).To(HaveLen(3))

			Expect(backend.Delete(ctx, "things", "1")).To(Succeed())
			_, err = backend.Get(ctx, "things", "1")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())

			others, err := backend.All(ctx, "other")
			Expect(err).ToNot(HaveOccurred())
			Expect(others).To(BeEmpty())
		})

		It("applies nothing when the batch function fails", func() {
			err := backend.Apply(ctx, func(b store.Batch) error {
				b.Put("things", "x", []byte(`{"id":"x"}`))
				return errors.New("boom")
			})
			Expect(err).To(MatchError("boom"))
			_, err = backend.Get(ctx, "things", "x")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})

		It("cascades agent deletion", func() {
			Expect(repo.SaveAgent(ctx, &types.Agent{ID: "a1", Name: "Ann", GroupID: "g"})).To(Succeed())
			Expect(repo.SaveAgent(ctx, &types.Agent{ID: "a2", Name: "Bo", GroupID: "g"})).To(Succeed())
			Expect(repo.SaveRelationship(ctx, &types.Relationship{Key: "a1|a2", A: "a1", B: "a2", Score: 10})).To(Succeed())
			Expect(repo.SaveRelationship(ctx, &types.Relationship{Key: "a1|user", A: "a1", B: "user", Score: 3})).To(Succeed())
			Expect(repo.SaveMemory(ctx, &types.Memory{ID: "m1", AgentID: "a1", Description: "x"})).To(Succeed())
			Expect(repo.SavePost(ctx, &types.Post{ID: "p1", AuthorID: "a1"})).To(Succeed())
			Expect(repo.SaveEvent(ctx, &types.Event{ID: "e1", GroupID: "g", ProcessedBy: []string{"a1", "a2"}})).To(Succeed())

			Expect(repo.DeleteAgent(ctx, "a1")).To(Succeed())

			_, err := repo.Agent(ctx, "a1")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
			rels, err := repo.RelationshipsOf(ctx, "a2")
			Expect(err).ToNot(HaveOccurred())
			Expect(rels).To(BeEmpty())
			mems, err := repo.Memories(ctx, "a1")
			Expect(err).ToNot(HaveOccurred())
			Expect(mems).To(BeEmpty())
			_, err = repo.Post(ctx, "p1")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
			events, err := repo.Events(ctx, "g")
			Expect(err).ToNot(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].ProcessedBy).To(ConsistOf("a2"))

			members, err := repo.Members(ctx, "g")
			Expect(err).ToNot(HaveOccurred())
			Expect(members).To(HaveLen(1))
		})

		It("expires old summaries", func() {
			Expect(repo.SaveSummary(ctx, &types.Summary{ID: "old", Timestamp: 100})).To(Succeed())
			Expect(repo.SaveSummary(ctx, &types.Summary{ID: "new", Timestamp: 1000})).To(Succeed())

			n, err := repo.DeleteSummariesBefore(ctx, 500)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(1))

			left, err := repo.Summaries(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(left).To(HaveLen(1))
			Expect(left[0].ID).To(Equal("new"))
		})

		It("returns zero settings before the first save", func() {
			s, err := repo.Settings(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(s.LastOnline).To(BeZero())

			Expect(repo.SaveSettings(ctx, types.Settings{LastOnline: 42})).To(Succeed())
			s, err = repo.Settings(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(s.LastOnline).To(Equal(int64(42)))
		})
	})
}

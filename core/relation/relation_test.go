package relation_test

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/mudler/LocalCircle/core/relation"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type failingStore struct{ *store.Repository }

func (failingStore) SaveRelationship(context.Context, *types.Relationship) error {
	return errors.New("disk full")
}

var _ = Describe("Relationship adjustment", func() {
	var (
		ctx  context.Context
		repo *store.Repository
		adj  *relation.Adjuster
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = store.NewRepository(store.NewMemory())
		adj = relation.NewAdjuster(repo)
	})

	It("creates a stranger record lazily with the delta as score", func() {
		rel, err := adj.Adjust(ctx, "bob", "alice", 7)
		Expect(err).ToNot(HaveOccurred())
		Expect(rel.Key).To(Equal("alice|bob"))
		Expect(rel.A).To(Equal("alice"))
		Expect(rel.Type).To(Equal(types.RelationStranger))
		Expect(rel.Score).To(Equal(7))
	})

	It("mutates one shared record regardless of argument order", func() {
		_, err := adj.Adjust(ctx, "a", "b", 5)
		Expect(err).ToNot(HaveOccurred())
		_, err = adj.Adjust(ctx, "b", "a", 5)
		Expect(err).ToNot(HaveOccurred())

		rels, err := repo.RelationshipsOf(ctx, "a")
		Expect(err).ToNot(HaveOccurred())
		Expect(rels).To(HaveLen(1))
		Expect(rels[0].Score).To(Equal(10))
	})

	It("never leaves the score range", func() {
		rng := rand.New(rand.NewPCG(11, 12))
		for i := 0; i < 500; i++ {
			delta := rng.IntN(1201) - 600
			rel, err := adj.Adjust(ctx, "x", "y", delta)
			Expect(err).ToNot(HaveOccurred())
			Expect(rel.Score).To(And(
				BeNumerically(">=", relation.MinScore),
				BeNumerically("<=", relation.MaxScore),
			))
		}
	})

	It("clamps a first adjustment beyond the bounds", func() {
		rel, err := adj.Adjust(ctx, "x", "y", 5000)
		Expect(err).ToNot(HaveOccurred())
		Expect(rel.Score).To(Equal(relation.MaxScore))
	})

	It("rejects self relationships", func() {
		_, err := adj.Adjust(ctx, "x", "x", 1)
		Expect(err).To(MatchError(relation.ErrSelf))
	})

	It("changes the type together with the score", func() {
		_, err := adj.Adjust(ctx, "x", "y", 40)
		Expect(err).ToNot(HaveOccurred())
		rel, err := adj.AdjustAs(ctx, "y", "x", -5, types.RelationRival)
		Expect(err).ToNot(HaveOccurred())
		Expect(rel.Score).To(Equal(35))
		Expect(rel.Type).To(Equal(types.RelationRival))

		_, err = adj.AdjustAs(ctx, "x", "y", 100, "enemy")
		Expect(err).To(HaveOccurred())
		stored, err := repo.Relationship(ctx, "x|y")
		Expect(err).ToNot(HaveOccurred())
		Expect(stored.Score).To(Equal(35))
		Expect(stored.Type).To(Equal(types.RelationRival))
	})

	It("surfaces storage failures", func() {
		adj = relation.NewAdjuster(failingStore{repo})
		_, err := adj.Adjust(ctx, "x", "y", 1)
		Expect(err).To(MatchError(ContainSubstring("disk full")))
	})
})

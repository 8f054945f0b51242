package gift_test

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/mudler/LocalCircle/core/gift"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Gift allocation", func() {
	Context("pooled", func() {
		It("never hands out more than the total and fills exactly at count", func() {
			for seed := uint64(0); seed < 200; seed++ {
				rng := rand.New(rand.NewPCG(seed, seed*7+1))
				count := 1 + rng.IntN(8)
				total := float64(count) * (0.01 + rng.Float64()*20)

				g, err := gift.NewPooled(total, count, "")
				Expect(err).ToNot(HaveOccurred())

				sum := 0.0
				for i := 0; i < count; i++ {
					Expect(g.FullyClaimed).To(BeFalse())
					amount, err := gift.Claim(g, fmt.Sprintf("agent-%d", i), int64(i), rng)
					Expect(err).ToNot(HaveOccurred())
					Expect(amount).To(BeNumerically(">=", 0.01))
					sum += amount
					Expect(sum).To(BeNumerically("<=", g.Total+1e-9))
					Expect(len(g.Claims) == count).To(Equal(g.FullyClaimed))
				}
				Expect(g.FullyClaimed).To(BeTrue())
				Expect(math.Abs(sum - g.Total)).To(BeNumerically("<", 1e-6))
			}
		})

		It("rounds claims to whole cents", func() {
			rng := rand.New(rand.NewPCG(1, 2))
			g, err := gift.NewPooled(10, 3, "")
			Expect(err).ToNot(HaveOccurred())
			amount, err := gift.Claim(g, "a", 1, rng)
			Expect(err).ToNot(HaveOccurred())
			Expect(math.Abs(amount*100 - math.Round(amount*100))).To(BeNumerically("<", 1e-9))
			Expect(amount).To(BeNumerically("<=", 5))
		})

		It("gives the whole remainder to the last claimant", func() {
			rng := rand.New(rand.NewPCG(3, 4))
			g, _ := gift.NewPooled(1, 2, "")
			first, _ := gift.Claim(g, "a", 1, rng)
			second, err := gift.Claim(g, "b", 2, rng)
			Expect(err).ToNot(HaveOccurred())
			Expect(first + second).To(BeNumerically("~", 1, 1e-9))
		})

		It("treats a repeated claim as a no-op", func() {
			rng := rand.New(rand.NewPCG(5, 6))
			g, _ := gift.NewPooled(5, 3, "")
			amount, err := gift.Claim(g, "a", 1, rng)
			Expect(err).ToNot(HaveOccurred())

			_, err = gift.Claim(g, "a", 2, rng)
			Expect(err).To(MatchError(gift.ErrAlreadyClaimed))
			Expect(g.Claims).To(HaveLen(1))
			Expect(g.Claims["a"].Amount).To(Equal(amount))
		})

		It("rejects claims once fully claimed", func() {
			rng := rand.New(rand.NewPCG(7, 8))
			g, _ := gift.NewPooled(2, 1, "")
			_, err := gift.Claim(g, "a", 1, rng)
			Expect(err).ToNot(HaveOccurred())
			_, err = gift.Claim(g, "b", 2, rng)
			Expect(err).To(MatchError(gift.ErrFullyClaimed))
		})

		It("rejects invalid amounts", func() {
			_, err := gift.NewPooled(-3, 2, "")
			Expect(err).To(MatchError(gift.ErrInvalid))
			_, err = gift.NewPooled(0.01, 5, "")
			Expect(err).To(MatchError(gift.ErrInvalid))
			_, err = gift.NewPooled(math.NaN(), 1, "")
			Expect(err).To(MatchError(gift.ErrInvalid))
			_, err = gift.NewPooled(1, 0, "")
			Expect(err).To(MatchError(gift.ErrInvalid))
		})
	})

	Context("targeted", func() {
		It("pays the full amount to the recipient only", func() {
			g, err := gift.NewTargeted(8.88, "bob", "for you")
			Expect(err).ToNot(HaveOccurred())

			_, err = gift.Claim(g, "alice", 1, nil)
			Expect(err).To(MatchError(gift.ErrNotRecipient))
			Expect(g.Claims).To(BeEmpty())

			amount, err := gift.Claim(g, "bob", 2, nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(amount).To(Equal(8.88))
			Expect(g.FullyClaimed).To(BeTrue())

			_, err = gift.Claim(g, "alice", 3, nil)
			Expect(err).To(MatchError(gift.ErrFullyClaimed))
		})
	})
})

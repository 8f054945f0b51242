// Package gift implements red packet creation and claiming.
//
// Amounts are handled in whole cents internally so that the sum of all
// claims can never exceed the packet total.
package gift

import (
	"errors"
	"math"

	"github.com/mudler/LocalCircle/core/types"
)

var (
	ErrInvalid        = errors.New("gift: invalid amount or count")
	ErrAlreadyClaimed = errors.New("gift: already claimed by this claimant")
	ErrFullyClaimed   = errors.New("gift: fully claimed")
	ErrNotRecipient   = errors.New("gift: claimant is not the recipient")
)

// Rand is the randomness source used for pooled draws. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

func NewPooled(total float64, count int, greeting string) (*types.Gift, error) {
	if count < 1 || !validAmount(total) || toCents(total) < int64(count) {
		return nil, ErrInvalid
	}
	return &types.Gift{
		Kind:     types.GiftPooled,
		Total:    fromCents(toCents(total)),
		Count:    count,
		Greeting: greeting,
		Claims:   map[string]types.Claim{},
	}, nil
}

// NewTargeted creates a single-slot gift only recipient may claim.
func NewTargeted(total float64, recipient, greeting string) (*types.Gift, error) {
	if recipient == "" || !validAmount(total) || toCents(total) < 1 {
		return nil, ErrInvalid
	}
	return &types.Gift{
		Kind:      types.GiftTargeted,
		Total:     fromCents(toCents(total)),
		Count:     1,
		Recipient: recipient,
		Greeting:  greeting,
		Claims:    map[string]types.Claim{},
	}, nil
}

// Remaining returns the unclaimed amount and the number of open slots.
func Remaining(g *types.Gift) (float64, int) {
	cents, slots := remaining(g)
	return fromCents(cents), slots
}

// Claim records a claim by claimant and returns the amount received.
// A second claim by the same claimant returns ErrAlreadyClaimed and leaves
// the gift untouched.
func Claim(g *types.Gift, claimant string, now int64, rng Rand) (float64, error) {
	if g.Claims == nil {
		g.Claims = map[string]types.Claim{}
	}
	if _, ok := g.Claims[claimant]; ok {
		return 0, ErrAlreadyClaimed
	}
	if g.FullyClaimed || len(g.Claims) >= g.Count {
		g.FullyClaimed = true
		return 0, ErrFullyClaimed
	}

	cents, slots := remaining(g)
	if cents <= 0 || slots <= 0 {
		return 0, ErrFullyClaimed
	}

	var amount int64
	switch g.Kind {
	case types.GiftTargeted:
		if claimant != g.Recipient {
			return 0, ErrNotRecipient
		}
		amount = cents
	default:
		amount = draw(cents, slots, rng)
	}

	g.Claims[claimant] = types.Claim{Amount: fromCents(amount), Timestamp: now}
	if len(g.Claims) >= g.Count {
		g.FullyClaimed = true
	}
	return fromCents(amount), nil
}

// draw picks a pooled amount in [1, min(remaining/slots*1.5, remaining-(slots-1))]
// cents. The last slot always takes whatever is left.
func draw(cents int64, slots int, rng Rand) int64 {
	if slots == 1 {
		return cents
	}
	upper := cents * 3 / (int64(slots) * 2)
	if reserve := cents - int64(slots-1); upper > reserve {
		upper = reserve
	}
	if upper < 1 {
		return 1
	}
	return 1 + int64(rng.IntN(int(upper)))
}

func remaining(g *types.Gift) (int64, int) {
	cents := toCents(g.Total)
	for _, c := range g.Claims {
		cents -= toCents(c.Amount)
	}
	return cents, g.Count - len(g.Claims)
}

func validAmount(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(c int64) float64 {
	return float64(c) / 100
}

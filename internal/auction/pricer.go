package auction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Params describe a decay-based auction: the acceptable destination amount
// starts at Initial and falls by DecayPerSecond every second after
// StartTime until it reaches the Min floor.
type Params struct {
	Initial        decimal.Decimal
	Min            decimal.Decimal
	DecayPerSecond decimal.Decimal
	StartTime      time.Time
}

// ValidationError reports malformed auction inputs. It is fatal and never
// retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid auction parameters: " + e.Reason
}

func (p Params) validate() error {
	switch {
	case p.Min.IsNegative():
		return &ValidationError{Reason: "min amount is negative"}
	case p.Initial.LessThan(p.Min):
		return &ValidationError{Reason: "initial amount below min"}
	case p.DecayPerSecond.IsNegative():
		return &ValidationError{Reason: "decay rate is negative"}
	}
	return nil
}

// CurrentAmount computes max(min, initial - decayPerSecond*elapsed).
// The result is non-increasing in elapsed time and never drops below the
// floor. A negative elapsed duration means the caller's clock is behind the
// auction start, which is an input error rather than a price of Initial.
func CurrentAmount(p Params, elapsed time.Duration) (decimal.Decimal, error) {
	if err := p.validate(); err != nil {
		return decimal.Zero, err
	}
	if elapsed < 0 {
		return decimal.Zero, &ValidationError{
			Reason: fmt.Sprintf("elapsed time is negative (%s); clock behind auction start", elapsed),
		}
	}

	seconds := decimal.NewFromFloat(elapsed.Seconds())
	amount := p.Initial.Sub(p.DecayPerSecond.Mul(seconds))
	if amount.LessThan(p.Min) {
		return p.Min, nil
	}
	return amount, nil
}

// AmountAt resolves the acceptable amount at the given wall-clock instant.
func (p Params) AmountAt(now time.Time) (decimal.Decimal, error) {
	return CurrentAmount(p, now.Sub(p.StartTime))
}

// AtFloor reports whether the auction has fully decayed at the given
// instant. Used by the floor-price rejection policy.
func (p Params) AtFloor(now time.Time) bool {
	if p.DecayPerSecond.IsZero() {
		return false
	}
	amount, err := p.AmountAt(now)
	if err != nil {
		return false
	}
	return amount.Equal(p.Min)
}

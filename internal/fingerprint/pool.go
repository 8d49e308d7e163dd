package fingerprint

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrExhausted is returned when every offset in the pool is held by an
// outstanding payment request.
var ErrExhausted = errors.New("fingerprint pool exhausted")

// Pool issues fingerprint amounts: the base price plus a small decimal offset
// that is unique among currently-outstanding payment requests. The pool does
// not track issued offsets itself; callers pass in the amounts that are still
// outstanding, so a slot becomes reusable the moment its pending payment is
// matched or expires.
type Pool struct {
	base  decimal.Decimal
	step  decimal.Decimal
	slots int
}

// NewPool creates a pool over base+step*1 .. base+step*slots.
func NewPool(base, step decimal.Decimal, slots int) *Pool {
	return &Pool{base: base, step: step, slots: slots}
}

// DefaultPool uses the 0.001 offset step, giving 999 concurrent slots above
// the base price.
func DefaultPool(base decimal.Decimal) *Pool {
	return NewPool(base, decimal.New(1, -3), 999)
}

// Base returns the base price.
func (p *Pool) Base() decimal.Decimal {
	return p.base
}

// Epsilon returns the match tolerance for this pool: one order of magnitude
// below the offset step, so a transfer can never be within tolerance of two
// distinct fingerprints.
func (p *Pool) Epsilon() decimal.Decimal {
	return p.step.Div(decimal.NewFromInt(10))
}

// Next returns the lowest fingerprint amount not present in inUse.
func (p *Pool) Next(inUse []decimal.Decimal) (decimal.Decimal, error) {
	for i := 1; i <= p.slots; i++ {
		candidate := p.base.Add(p.step.Mul(decimal.NewFromInt(int64(i))))
		if !contains(inUse, candidate) {
			return candidate, nil
		}
	}
	return decimal.Decimal{}, ErrExhausted
}

func contains(amounts []decimal.Decimal, amount decimal.Decimal) bool {
	for _, a := range amounts {
		if a.Equal(amount) {
			return true
		}
	}
	return false
}

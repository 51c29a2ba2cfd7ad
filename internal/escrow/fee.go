package escrow

import "math/big"

// DefaultFeePercent is the arbiter's cut of the escrowed total
const DefaultFeePercent = 2

// FeePolicy computes the arbiter fee from an escrow amount. The fee is
// computed once at funding time and never recomputed: milestones cannot be
// altered after funding, so the fee is stable for the life of the project.
type FeePolicy struct {
	Percent int64
}

func NewFeePolicy() FeePolicy {
	return FeePolicy{Percent: DefaultFeePercent}
}

// Fee returns amount * percent / 100 rounded down. Integer arithmetic only,
// amounts are in the smallest indivisible unit.
func (f FeePolicy) Fee(amount *big.Int) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(f.Percent))
	return fee.Div(fee, big.NewInt(100))
}

// FundingRequired returns the exact deposit startProject expects
func (f FeePolicy) FundingRequired(total *big.Int) *big.Int {
	return new(big.Int).Add(total, f.Fee(total))
}

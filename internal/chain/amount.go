package chain

import (
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// LamportSlack is the accepted rounding slack, in lamports, when comparing
// observed transfer amounts against expected ones. Each payment leg is
// floored independently by wallets, so the two legs may undershoot the
// total by at most one unit.
const LamportSlack = 1

// DefaultFeeRate is the platform's cut of every marketplace sale.
var DefaultFeeRate = decimal.NewFromFloat(0.10)

var lamportsPerSOL = decimal.NewFromInt(int64(solana.LAMPORTS_PER_SOL))

// LamportsFromSOL converts a native-unit price to lamports, truncating any
// sub-lamport fraction.
func LamportsFromSOL(price decimal.Decimal) uint64 {
	if price.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return uint64(price.Mul(lamportsPerSOL).IntPart())
}

// SOLFromLamports converts lamports back to native units.
func SOLFromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(lamports)).Div(lamportsPerSOL)
}

// SplitPayment divides a total into the seller and platform legs using
// integer lamport arithmetic. The fee is floored and the seller leg is
// derived as total minus fee, so sellerLamports + feeLamports always equals
// total exactly.
func SplitPayment(totalLamports uint64, feeRate decimal.Decimal) (sellerLamports, feeLamports uint64) {
	fee := decimal.NewFromInt(int64(totalLamports)).Mul(feeRate).Floor().IntPart()
	if fee < 0 {
		fee = 0
	}
	if uint64(fee) > totalLamports {
		fee = int64(totalLamports)
	}
	feeLamports = uint64(fee)
	sellerLamports = totalLamports - feeLamports
	return sellerLamports, feeLamports
}

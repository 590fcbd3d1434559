// Package fees centralizes the two places a Polymarket binary-outcome
// fee estimate is needed: the signal engine's edge computation and the
// paper/live PnL calculation. Grounded on
// original_source/bot/bankroll.py's documented mechanic ("Win: each
// token pays $1 minus 2% fee") and backtest.py's per-timeframe
// MIN_EDGE_BY_TF table, which implies a matching per-timeframe fee
// table (shorter timeframes need a bigger edge cushion because the fee
// bites a larger share of the smaller available edge).
package fees

// WinnerFeeRate is Polymarket's resolution-time fee on winning shares:
// a $1 payout nets $0.98 after fees.
const WinnerFeeRate = 0.02

// baseFeeByTimeframe is the edge-equivalent fee drag assumed per
// timeframe when estimating a trade's edge before placing it.
var baseFeeByTimeframe = map[string]float64{
	"5m":  0.025,
	"15m": 0.02,
	"1h":  0.015,
	"4h":  0.01,
}

const defaultBaseFee = 0.02

// Estimate returns the fee drag to subtract from a signal's raw edge.
// When impliedPrice is known, the estimate scales up the further the
// market sits from 50/50 (the fee bites proportionally harder on lopsided
// markets, where the winning side's payout ratio is smaller).
func Estimate(timeframe string, impliedPrice *float64) float64 {
	base, ok := baseFeeByTimeframe[timeframe]
	if !ok {
		base = defaultBaseFee
	}
	if impliedPrice == nil {
		return base
	}
	skew := *impliedPrice - 0.5
	if skew < 0 {
		skew = -skew
	}
	return base * (1 + skew)
}

// PnL computes the realized profit/loss in USD for a resolved binary
// position. A win pays $1 per share minus feeRate (bankroll.py: "each
// token pays $1 minus 2% fee = $0.98"); a loss forfeits the full stake.
func PnL(won bool, sizeUSD, entryPrice, feeRate float64) float64 {
	if !won {
		return -sizeUSD
	}
	if entryPrice <= 0 {
		return 0
	}
	shares := sizeUSD / entryPrice
	payout := shares * (1 - feeRate)
	return payout - sizeUSD
}

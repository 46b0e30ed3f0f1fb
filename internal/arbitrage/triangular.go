// Package arbitrage turns fetched order books into profitable opportunities:
// triangular cycles on one exchange and price gaps across exchanges.
package arbitrage

import (
	"sort"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// DefaultFeeRate is the taker fee charged at each hop when the exchange does
// not report one.
const DefaultFeeRate = 0.001

// DynamicMinVolume returns the executable top-of-book size of a book: the
// smaller of best ask volume and best bid volume, or 0 when either side is
// empty or that size is below threshold.
func DynamicMinVolume(book domain.OrderBookSnapshot, threshold float64) float64 {
	ask, okAsk := book.BestAsk()
	bid, okBid := book.BestBid()
	if !okAsk || !okBid {
		return 0
	}
	v := min(ask.Volume, bid.Volume)
	if v < threshold {
		return 0
	}
	return v
}

// EvaluateTriangle simulates converting one unit of the start asset through
// the three legs at top-of-book: buy on leg A at the ask, sell on legs B and
// C at the bid, paying feeRate at each hop. It reports false when a leg is
// missing, too thin, has no resting orders, or the cycle is not profitable.
func EvaluateTriangle(t domain.Triangle, books domain.OrderBooks, feeRate, threshold float64) (domain.Opportunity, bool) {
	bookA, okA := books[t.A]
	bookB, okB := books[t.B]
	bookC, okC := books[t.C]
	if !okA || !okB || !okC {
		return domain.Opportunity{}, false
	}

	volA := DynamicMinVolume(bookA, threshold)
	volB := DynamicMinVolume(bookB, threshold)
	volC := DynamicMinVolume(bookC, threshold)
	if volA < threshold || volB < threshold || volC < threshold {
		return domain.Opportunity{}, false
	}

	aAsk, ok1 := bookA.BestAsk()
	bBid, ok2 := bookB.BestBid()
	cBid, ok3 := bookC.BestBid()
	if !ok1 || !ok2 || !ok3 || aAsk.Price <= 0 || bBid.Price <= 0 || cBid.Price <= 0 {
		return domain.Opportunity{}, false
	}

	const start = 1.0
	keep := 1 - feeRate
	amountB := (start / aAsk.Price) * keep
	amountC := (amountB * bBid.Price) * keep
	end := (amountC * cBid.Price) * keep
	profit := end - start
	if profit <= 0 {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		Triangle:    t,
		Path:        t.String(),
		StartAmount: start,
		EndAmount:   end,
		Profit:      profit,
		FeeRate:     feeRate,
		Legs: [3]domain.Leg{
			{Pair: t.A, Symbol: t.A.String(), Side: domain.SideBuy, Price: aAsk.Price, MinVolume: volA},
			{Pair: t.B, Symbol: t.B.String(), Side: domain.SideSell, Price: bBid.Price, MinVolume: volB},
			{Pair: t.C, Symbol: t.C.String(), Side: domain.SideSell, Price: cBid.Price, MinVolume: volC},
		},
	}, true
}

// EvaluateAll evaluates every triangle and returns the profitable ones in
// input order.
func EvaluateAll(triangles []domain.Triangle, books domain.OrderBooks, feeRate, threshold float64) []domain.Opportunity {
	var out []domain.Opportunity
	for _, t := range triangles {
		if opp, ok := EvaluateTriangle(t, books, feeRate, threshold); ok {
			out = append(out, opp)
		}
	}
	return out
}

// Rank sorts opportunities by profit, highest first. Ties keep their
// original order.
func Rank(opps []domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Profit > opps[j].Profit
	})
}

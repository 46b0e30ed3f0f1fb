package arbitrage

import (
	"github.com/alanyoungcy/triarb/internal/domain"
)

// VenueQuote is the last traded price of one symbol on one exchange together
// with that exchange's taker fee.
type VenueQuote struct {
	Exchange string
	Last     float64
	TakerFee float64
}

// SpreadConfig configures cross-exchange spread detection.
type SpreadConfig struct {
	OrderSize float64 // units of the base asset bought and sold
	MinProfit float64 // quote-currency profit a gap must exceed to count
}

// DetectSpread compares the last price of one symbol across exchanges. The
// cheapest venue is the buy side and the dearest the sell side; ties go to
// the first quote in input order. Profit is the price gap over OrderSize
// less the taker fee paid on each side. The result is reported even when it
// is not profitable; Profitable tells the two apart. It returns false when
// fewer than two venues quote a positive price.
func DetectSpread(symbol string, quotes []VenueQuote, cfg SpreadConfig) (domain.SpreadOpportunity, bool) {
	lo, hi := -1, -1
	valid := 0
	for i, q := range quotes {
		if q.Last <= 0 {
			continue
		}
		valid++
		if lo < 0 || q.Last < quotes[lo].Last {
			lo = i
		}
		if hi < 0 || q.Last > quotes[hi].Last {
			hi = i
		}
	}
	if valid < 2 {
		return domain.SpreadOpportunity{}, false
	}

	buy, sell := quotes[lo], quotes[hi]
	buyFee := cfg.OrderSize * buy.Last * buy.TakerFee
	sellFee := cfg.OrderSize * sell.Last * sell.TakerFee
	profit := (sell.Last-buy.Last)*cfg.OrderSize - buyFee - sellFee

	return domain.SpreadOpportunity{
		Symbol:     symbol,
		BuyOn:      buy.Exchange,
		BuyPrice:   buy.Last,
		SellOn:     sell.Exchange,
		SellPrice:  sell.Last,
		OrderSize:  cfg.OrderSize,
		Fees:       buyFee + sellFee,
		Profit:     profit,
		Profitable: profit > cfg.MinProfit,
	}, true
}

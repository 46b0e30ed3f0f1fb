package domain

import (
	"fmt"
	"time"
)

// Side is the direction of one leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Leg is the executable top-of-book detail for one hop of a triangle.
type Leg struct {
	Pair      TradingPair `json:"-"`
	Symbol    string      `json:"pair"`
	Side      Side        `json:"side"`
	Price     float64     `json:"price"`
	MinVolume float64     `json:"min_volume"`
}

// Opportunity is a profitable triangle evaluated against one set of books.
// It is built once per tick and never mutated afterwards.
type Opportunity struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Exchange    string    `json:"exchange"`
	Triangle    Triangle  `json:"-"`
	Path        string    `json:"path"`
	StartAmount float64   `json:"start_amount"`
	EndAmount   float64   `json:"end_amount"`
	Profit      float64   `json:"profit"`
	FeeRate     float64   `json:"fee_rate"`
	Legs        [3]Leg    `json:"legs"`
	DetectedAt  time.Time `json:"detected_at"`
}

// ProfitPct returns the profit as a percentage of the start amount.
func (o Opportunity) ProfitPct() float64 {
	if o.StartAmount == 0 {
		return 0
	}
	return o.Profit / o.StartAmount * 100
}

// Summary renders the human-readable status line sent to the sink.
func (o Opportunity) Summary() string {
	return fmt.Sprintf(
		"Profitable Triangle: %s\nProfit: %.6f units\nDetails: start_amount=%.6f end_amount=%.6f a_ask=%g b_bid=%g c_bid=%g min_volume_a=%g min_volume_b=%g min_volume_c=%g",
		o.Triangle, o.Profit, o.StartAmount, o.EndAmount,
		o.Legs[0].Price, o.Legs[1].Price, o.Legs[2].Price,
		o.Legs[0].MinVolume, o.Legs[1].MinVolume, o.Legs[2].MinVolume,
	)
}

// SpreadOpportunity is a cross-exchange price gap on one symbol.
type SpreadOpportunity struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	BuyOn      string    `json:"buy"`
	BuyPrice   float64   `json:"min_price"`
	SellOn     string    `json:"sell"`
	SellPrice  float64   `json:"max_price"`
	OrderSize  float64   `json:"order_size"`
	Fees       float64   `json:"fees"`
	Profit     float64   `json:"profit"`
	Profitable bool      `json:"profitable"`
	DetectedAt time.Time `json:"detected_at"`
}

package domain

import "time"

// PriceLevel is a single price+volume entry in an order book.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// OrderBookSnapshot is a top-of-book view of one pair. Bids are sorted
// highest first and asks lowest first.
type OrderBookSnapshot struct {
	Pair      TradingPair  `json:"-"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// BestBid returns the highest bid, or false when the bid side is empty.
func (s OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask, or false when the ask side is empty.
func (s OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// OrderBooks maps a pair to its most recent snapshot.
type OrderBooks map[TradingPair]OrderBookSnapshot

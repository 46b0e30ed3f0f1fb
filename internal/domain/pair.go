package domain

import (
	"fmt"
	"strings"
)

// Asset is an exchange ticker such as "BTC".
type Asset string

// TradingPair is one quotable market, rendered canonically as "BASE/QUOTE".
type TradingPair struct {
	Base  Asset
	Quote Asset
}

// NewPair builds a TradingPair from two tickers.
func NewPair(base, quote Asset) TradingPair {
	return TradingPair{Base: base, Quote: quote}
}

// String renders the canonical "BASE/QUOTE" symbol.
func (p TradingPair) String() string {
	return string(p.Base) + "/" + string(p.Quote)
}

// Has reports whether a is either side of the pair.
func (p TradingPair) Has(a Asset) bool {
	return p.Base == a || p.Quote == a
}

// Other returns the side of the pair that is not a. The second return value
// is false when a is not part of the pair.
func (p TradingPair) Other(a Asset) (Asset, bool) {
	switch a {
	case p.Base:
		return p.Quote, true
	case p.Quote:
		return p.Base, true
	default:
		return "", false
	}
}

// ParsePair splits a "BASE/QUOTE" symbol. Symbols that do not have exactly
// two non-empty, distinct components are rejected with ErrMalformedSymbol.
func ParsePair(symbol string) (TradingPair, error) {
	parts := strings.Split(strings.TrimSpace(symbol), "/")
	if len(parts) != 2 {
		return TradingPair{}, fmt.Errorf("%w: %q", ErrMalformedSymbol, symbol)
	}
	base := Asset(strings.ToUpper(strings.TrimSpace(parts[0])))
	quote := Asset(strings.ToUpper(strings.TrimSpace(parts[1])))
	if base == "" || quote == "" || base == quote {
		return TradingPair{}, fmt.Errorf("%w: %q", ErrMalformedSymbol, symbol)
	}
	return TradingPair{Base: base, Quote: quote}, nil
}

// Market is one listed pair as reported by an exchange.
type Market struct {
	Symbol   string // canonical "BASE/QUOTE"
	NativeID string // exchange-specific id, e.g. "BTC_USDT" or "BTCUSDT"
	Active   bool
	TakerFee float64 // 0 when the exchange does not publish one per market
}

// Ticker is the last traded price for a pair on one exchange.
type Ticker struct {
	Pair    TradingPair
	Last    float64
	Bid     float64
	Ask     float64
	Updated int64 // unix millis, 0 if unknown
}

// Balances maps an asset to its total (free + locked) amount.
type Balances map[Asset]float64

// Credentials authenticate against an exchange.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// Empty reports whether no key material is set.
func (c Credentials) Empty() bool {
	return c.APIKey == "" && c.APISecret == ""
}

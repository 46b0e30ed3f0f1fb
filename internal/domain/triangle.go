package domain

import "strings"

// Triangle is a closed walk Start -> Mid -> End -> Start. A joins Start and
// Mid, B joins Mid and End, C joins End and Start. Each pair is whichever
// orientation the exchange lists.
type Triangle struct {
	Start Asset
	Mid   Asset
	End   Asset
	A     TradingPair
	B     TradingPair
	C     TradingPair
}

// Pairs returns the three legs in traversal order.
func (t Triangle) Pairs() [3]TradingPair {
	return [3]TradingPair{t.A, t.B, t.C}
}

// Assets returns the walk including the return to Start.
func (t Triangle) Assets() [4]Asset {
	return [4]Asset{t.Start, t.Mid, t.End, t.Start}
}

// String renders the walk as "BTC->ETH->USDT->BTC".
func (t Triangle) String() string {
	a := t.Assets()
	parts := make([]string, len(a))
	for i, x := range a {
		parts[i] = string(x)
	}
	return strings.Join(parts, "->")
}

// Key identifies the triangle by its ordered legs.
func (t Triangle) Key() string {
	return t.A.String() + "|" + t.B.String() + "|" + t.C.String()
}

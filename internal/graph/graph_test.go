package graph

import (
	"testing"

	"github.com/alanyoungcy/triarb/internal/domain"
)

func markets(active bool, symbols ...string) []domain.Market {
	out := make([]domain.Market, len(symbols))
	for i, s := range symbols {
		out[i] = domain.Market{Symbol: s, Active: active}
	}
	return out
}

func TestBuildIsSymmetric(t *testing.T) {
	g := Build(markets(true, "BTC/USDT", "ETH/BTC", "ETH/USDT", "SOL/USDT", "SOL/ETH"))

	for _, a := range g.Assets() {
		for _, b := range g.Neighbors(a) {
			if !g.HasEdge(b, a) {
				t.Fatalf("edge %s->%s has no reverse", a, b)
			}
		}
	}
	if g.Len() != 4 {
		t.Fatalf("expected 4 assets, got %d", g.Len())
	}
}

func TestBuildSkipsInactiveAndMalformed(t *testing.T) {
	ms := append(markets(true, "BTC/USDT", "BTCUSDT", "A/B/C", "/USDT", "ETH/ETH"),
		domain.Market{Symbol: "ETH/USDT", Active: false})

	g := Build(ms)

	if g.HasEdge("ETH", "USDT") {
		t.Fatal("inactive market should not create an edge")
	}
	if !g.HasEdge("BTC", "USDT") {
		t.Fatal("expected BTC/USDT edge")
	}
	if g.Skipped() != 4 {
		t.Fatalf("expected 4 skipped symbols, got %d", g.Skipped())
	}
}

func TestBuildKeepsFirstOrientation(t *testing.T) {
	g := Build(markets(true, "ETH/BTC", "BTC/ETH"))

	p, ok := g.Pair("BTC", "ETH")
	if !ok {
		t.Fatal("missing edge")
	}
	if p.String() != "ETH/BTC" {
		t.Fatalf("expected first listed orientation ETH/BTC, got %s", p)
	}
}

func TestFindTrianglesScenario(t *testing.T) {
	g := Build(markets(true, "BTC/USDT", "ETH/BTC", "ETH/USDT"))

	tris := g.FindTriangles("BTC", nil)

	var found bool
	for _, tr := range tris {
		if tr.Mid == "ETH" && tr.End == "USDT" {
			found = true
			if tr.A.String() != "ETH/BTC" || tr.B.String() != "ETH/USDT" || tr.C.String() != "BTC/USDT" {
				t.Fatalf("unexpected legs: %s %s %s", tr.A, tr.B, tr.C)
			}
		}
	}
	if !found {
		t.Fatalf("expected BTC->ETH->USDT->BTC in %v", tris)
	}
	// The reverse walk BTC->USDT->ETH->BTC is kept as its own triangle.
	if len(tris) != 2 {
		t.Fatalf("expected 2 triangles, got %d", len(tris))
	}
}

func TestFindTrianglesAreClosedWalks(t *testing.T) {
	g := Build(markets(true,
		"BTC/USDT", "ETH/BTC", "ETH/USDT", "SOL/USDT", "SOL/BTC", "SOL/ETH", "XRP/USDT",
	))

	for _, start := range g.Assets() {
		for _, tr := range g.FindTriangles(start, nil) {
			if tr.Mid == tr.End {
				t.Fatalf("mid == end in %s", tr)
			}
			if !tr.A.Has(tr.Start) || !tr.A.Has(tr.Mid) {
				t.Fatalf("leg A %s does not join %s and %s", tr.A, tr.Start, tr.Mid)
			}
			if !tr.B.Has(tr.Mid) || !tr.B.Has(tr.End) {
				t.Fatalf("leg B %s does not join %s and %s", tr.B, tr.Mid, tr.End)
			}
			if !tr.C.Has(tr.End) || !tr.C.Has(tr.Start) {
				t.Fatalf("leg C %s does not join %s and %s", tr.C, tr.End, tr.Start)
			}
		}
	}
}

func TestFindTrianglesWhitelist(t *testing.T) {
	g := Build(markets(true,
		"BTC/USDT", "ETH/BTC", "ETH/USDT", "SOL/BTC", "SOL/USDT",
	))

	tests := []struct {
		name      string
		whitelist []domain.Asset
		want      int
	}{
		{name: "empty is pass-through", whitelist: nil, want: 4},
		{name: "start is whitelisted", whitelist: []domain.Asset{"BTC"}, want: 4},
		{name: "only sol walks", whitelist: []domain.Asset{"SOL"}, want: 2},
		{name: "unknown asset", whitelist: []domain.Asset{"DOGE"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.FindTriangles("BTC", AssetSet(tt.whitelist))
			if len(got) != tt.want {
				t.Fatalf("got %d triangles, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFilterMarketsAndUniquePairs(t *testing.T) {
	ms := markets(true, "BTC/USDT", "ETH/BTC", "ETH/USDT", "DOGE/USDT")
	kept := FilterMarkets(ms, AssetSet([]domain.Asset{"DOGE"}))
	if len(kept) != 3 {
		t.Fatalf("expected 3 markets after blacklist, got %d", len(kept))
	}

	g := Build(kept)
	pairs := UniquePairs(g.FindTriangles("BTC", nil))
	if len(pairs) != 3 {
		t.Fatalf("expected 3 distinct pairs, got %d (%v)", len(pairs), pairs)
	}
}

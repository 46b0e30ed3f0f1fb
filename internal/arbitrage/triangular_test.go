package arbitrage

import (
	"fmt"
	"math"
	"testing"

	"github.com/alanyoungcy/triarb/internal/domain"
)

var (
	ethBTC  = domain.NewPair("ETH", "BTC")
	ethUSDT = domain.NewPair("ETH", "USDT")
	btcUSDT = domain.NewPair("BTC", "USDT")
)

func book(bid, ask, vol float64) domain.OrderBookSnapshot {
	var s domain.OrderBookSnapshot
	if bid > 0 {
		s.Bids = []domain.PriceLevel{{Price: bid, Volume: vol}}
	}
	if ask > 0 {
		s.Asks = []domain.PriceLevel{{Price: ask, Volume: vol}}
	}
	return s
}

func triangle() domain.Triangle {
	return domain.Triangle{Start: "USDT", Mid: "ETH", End: "BTC", A: ethUSDT, B: ethBTC, C: btcUSDT}
}

func profitableBooks() domain.OrderBooks {
	return domain.OrderBooks{
		ethUSDT: book(99, 100, 5),
		ethBTC:  book(0.02, 0.021, 5),
		btcUSDT: book(6000, 6001, 5),
	}
}

func TestDynamicMinVolume(t *testing.T) {
	tests := []struct {
		name      string
		book      domain.OrderBookSnapshot
		threshold float64
		want      float64
	}{
		{"smaller side wins", domain.OrderBookSnapshot{
			Bids: []domain.PriceLevel{{Price: 1, Volume: 3}},
			Asks: []domain.PriceLevel{{Price: 2, Volume: 7}},
		}, 1, 3},
		{"below threshold", book(1, 2, 0.5), 1, 0},
		{"equal to threshold", book(1, 2, 1), 1, 1},
		{"no bids", book(0, 2, 5), 1, 0},
		{"no asks", book(1, 0, 5), 1, 0},
		{"empty", domain.OrderBookSnapshot{}, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DynamicMinVolume(tc.book, tc.threshold); got != tc.want {
				t.Fatalf("DynamicMinVolume = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateTriangleProfit(t *testing.T) {
	opp, ok := EvaluateTriangle(triangle(), profitableBooks(), DefaultFeeRate, 1)
	if !ok {
		t.Fatal("expected a profitable triangle")
	}

	want := (1.0 / 100) * 0.999 * 0.02 * 0.999 * 6000 * 0.999
	if math.Abs(opp.EndAmount-want) > 1e-12 {
		t.Fatalf("end amount = %v, want %v", opp.EndAmount, want)
	}
	if got := fmt.Sprintf("%.6f", opp.Profit); got != "0.196404" {
		t.Fatalf("profit = %s, want 0.196404", got)
	}
	if opp.StartAmount != 1 || opp.FeeRate != DefaultFeeRate {
		t.Fatalf("unexpected start/fee: %+v", opp)
	}
	if opp.Path != "USDT->ETH->BTC->USDT" {
		t.Fatalf("path = %q", opp.Path)
	}

	legs := opp.Legs
	if legs[0].Side != domain.SideBuy || legs[0].Price != 100 {
		t.Fatalf("leg A = %+v, want buy at ask 100", legs[0])
	}
	if legs[1].Side != domain.SideSell || legs[1].Price != 0.02 {
		t.Fatalf("leg B = %+v, want sell at bid 0.02", legs[1])
	}
	if legs[2].Side != domain.SideSell || legs[2].Price != 6000 {
		t.Fatalf("leg C = %+v, want sell at bid 6000", legs[2])
	}
	for i, l := range legs {
		if l.MinVolume != 5 {
			t.Fatalf("leg %d min volume = %v, want 5", i, l.MinVolume)
		}
	}
}

func TestEvaluateTriangleSkips(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(domain.OrderBooks)
		thresh float64
	}{
		{"missing leg", func(b domain.OrderBooks) { delete(b, ethBTC) }, 1},
		{"thin leg", func(b domain.OrderBooks) { b[btcUSDT] = book(6000, 6001, 0.5) }, 1},
		{"no ask on first leg", func(b domain.OrderBooks) { b[ethUSDT] = book(99, 0, 5) }, 0},
		{"no bid on last leg", func(b domain.OrderBooks) { b[btcUSDT] = book(0, 6001, 5) }, 0},
		{"unprofitable", func(b domain.OrderBooks) { b[btcUSDT] = book(4000, 4001, 5) }, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			books := profitableBooks()
			tc.mutate(books)
			if opp, ok := EvaluateTriangle(triangle(), books, DefaultFeeRate, tc.thresh); ok {
				t.Fatalf("expected skip, got %+v", opp)
			}
		})
	}
}

func TestEvaluateTriangleBreakEvenIsNotProfit(t *testing.T) {
	books := domain.OrderBooks{
		ethUSDT: book(1, 1, 5),
		ethBTC:  book(1, 1, 5),
		btcUSDT: book(1, 1, 5),
	}
	if _, ok := EvaluateTriangle(triangle(), books, 0, 1); ok {
		t.Fatal("zero profit must not be reported")
	}
}

func TestHigherFeeNeverIncreasesProfit(t *testing.T) {
	books := profitableBooks()
	prev := math.Inf(1)
	for _, fee := range []float64{0, 0.0005, 0.001, 0.002, 0.01} {
		opp, ok := EvaluateTriangle(triangle(), books, fee, 1)
		if !ok {
			t.Fatalf("fee %v: expected profit", fee)
		}
		if opp.Profit > prev {
			t.Fatalf("fee %v: profit %v rose above %v", fee, opp.Profit, prev)
		}
		prev = opp.Profit
	}
}

func TestEvaluateAllKeepsInputOrderAndRankSorts(t *testing.T) {
	other := domain.NewPair("SOL", "USDT")
	solETH := domain.NewPair("SOL", "ETH")
	books := profitableBooks()
	books[other] = book(199, 200, 5)
	books[solETH] = book(2.1, 2.2, 5)

	small := domain.Triangle{Start: "USDT", Mid: "SOL", End: "ETH", A: other, B: solETH, C: ethUSDT}
	dud := domain.Triangle{Start: "USDT", Mid: "BTC", End: "ETH", A: btcUSDT, B: ethBTC, C: ethUSDT}
	big := triangle()

	opps := EvaluateAll([]domain.Triangle{small, dud, big}, books, DefaultFeeRate, 1)
	if len(opps) != 2 {
		t.Fatalf("expected 2 opportunities, got %d", len(opps))
	}
	if opps[0].Path != small.String() || opps[1].Path != big.String() {
		t.Fatalf("input order not kept: %s, %s", opps[0].Path, opps[1].Path)
	}

	Rank(opps)
	if opps[0].Path != big.String() {
		t.Fatalf("rank: expected %s first, got %s", big, opps[0].Path)
	}
	if opps[0].Profit < opps[1].Profit {
		t.Fatal("rank must sort by profit descending")
	}
}

func TestRankIsStable(t *testing.T) {
	opps := []domain.Opportunity{
		{Path: "a", Profit: 0.1},
		{Path: "b", Profit: 0.2},
		{Path: "c", Profit: 0.1},
	}
	Rank(opps)
	got := opps[0].Path + opps[1].Path + opps[2].Path
	if got != "bac" {
		t.Fatalf("rank order = %s, want bac", got)
	}
}

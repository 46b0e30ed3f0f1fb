package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/triarb/internal/domain"
)

func TestPaperSeed(t *testing.T) {
	ex := Paper()
	ctx := context.Background()

	ms, err := ex.LoadMarkets(ctx)
	if err != nil || len(ms) != 5 {
		t.Fatalf("markets = %d, err = %v", len(ms), err)
	}
	bal, err := ex.FetchBalance(ctx)
	if err != nil || bal["USDT"] != 1000 {
		t.Fatalf("balance = %v, err = %v", bal, err)
	}
	book, err := ex.FetchOrderBook(ctx, domain.NewPair("ETH", "USDT"))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if ask, _ := book.BestAsk(); ask.Price != 100 {
		t.Fatalf("ask = %v", ask.Price)
	}
	if book.FetchedAt.IsZero() {
		t.Fatal("book not stamped")
	}
	if len(ex.Pairs()) != 4 {
		t.Fatalf("pairs = %v", ex.Pairs())
	}
}

func TestFetchOrderBookUnknownPair(t *testing.T) {
	_, err := New("x").FetchOrderBook(context.Background(), domain.NewPair("A", "B"))
	if !errors.Is(err, domain.ErrConnectivity) || !errors.Is(err, domain.ErrUnsupportedPair) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestFailureInjection(t *testing.T) {
	boom := errors.New("down")
	ex := New("x").FailLoadMarkets(boom).FailBalance(boom).SetTakerFee(0, boom)
	ctx := context.Background()

	if _, err := ex.LoadMarkets(ctx); !errors.Is(err, boom) {
		t.Fatalf("load markets: %v", err)
	}
	if _, err := ex.FetchBalance(ctx); !errors.Is(err, boom) {
		t.Fatalf("balance: %v", err)
	}
	if _, err := ex.TakerFee(ctx); !errors.Is(err, domain.ErrConnectivity) {
		t.Fatalf("fee: %v", err)
	}

	ex.OnFetchOrderBook(func(context.Context, domain.TradingPair) (domain.OrderBookSnapshot, error) {
		return domain.OrderBookSnapshot{}, boom
	})
	if _, err := ex.FetchOrderBook(ctx, domain.NewPair("A", "B")); !errors.Is(err, boom) {
		t.Fatalf("book: %v", err)
	}
	if ex.BookCalls() != 1 {
		t.Fatalf("book calls = %d", ex.BookCalls())
	}

	_ = ex.Close()
	_ = ex.Close()
	if ex.Closes() != 2 {
		t.Fatalf("closes = %d", ex.Closes())
	}
}

func TestFetchTickersFilters(t *testing.T) {
	ex := Paper()
	got, err := ex.FetchTickers(context.Background(), []domain.TradingPair{
		domain.NewPair("BTC", "USDT"), domain.NewPair("DOGE", "USDT"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[domain.NewPair("BTC", "USDT")].Last != 6000 {
		t.Fatalf("tickers = %v", got)
	}
}

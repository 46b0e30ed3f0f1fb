package exchange_test

import (
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/exchange"
	"github.com/alanyoungcy/triarb/internal/exchange/memory"
)

func TestRegistryOpen(t *testing.T) {
	r := exchange.NewRegistry()
	r.Register("Paper", memory.Factory)
	r.Register("broken", func(domain.Credentials, exchange.Options) (domain.Exchange, error) {
		return nil, errors.New("boom")
	})

	ex, err := r.Open("PAPER", domain.Credentials{}, exchange.Options{})
	if err != nil {
		t.Fatalf("open paper: %v", err)
	}
	if ex.ID() != memory.ID {
		t.Fatalf("id = %q", ex.ID())
	}

	if _, err := r.Open("kraken", domain.Credentials{}, exchange.Options{}); !errors.Is(err, domain.ErrUnknownExchange) {
		t.Fatalf("expected ErrUnknownExchange, got %v", err)
	}
	if _, err := r.Open("broken", domain.Credentials{}, exchange.Options{}); err == nil {
		t.Fatal("expected factory error")
	}

	if got := r.List(); !reflect.DeepEqual(got, []string{"broken", "paper"}) {
		t.Fatalf("list = %v", got)
	}
	if !r.Has("paper") || r.Has("kraken") {
		t.Fatal("Has mismatch")
	}
}

func TestParseLevels(t *testing.T) {
	rows := [][]string{{"100.5", "2"}, {"100.4", "0.001"}, {"100.3", "9"}}
	got, err := exchange.ParseLevels(rows, 2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []domain.PriceLevel{{Price: 100.5, Volume: 2}, {Price: 100.4, Volume: 0.001}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("levels = %+v, want %+v", got, want)
	}

	if _, err := exchange.ParseLevels([][]string{{"1"}}, 0); err == nil {
		t.Fatal("expected error for short row")
	}
	if _, err := exchange.ParseLevels([][]string{{"x", "1"}}, 0); err == nil {
		t.Fatal("expected error for bad number")
	}
}

func TestClassify(t *testing.T) {
	base := errors.New("upstream")
	tests := []struct {
		name   string
		status int
		target error
	}{
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimited},
		{"unauthorized", http.StatusUnauthorized, domain.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, domain.ErrUnauthorized},
		{"server error", http.StatusBadGateway, base},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := exchange.Classify("gate", "op", &http.Response{StatusCode: tc.status}, base)
			if !errors.Is(err, domain.ErrConnectivity) {
				t.Fatalf("expected ErrConnectivity, got %v", err)
			}
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v in chain, got %v", tc.target, err)
			}
		})
	}
	if exchange.Classify("gate", "op", nil, nil) != nil {
		t.Fatal("nil error must stay nil")
	}
}

package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/triarb/internal/domain"
)

func TestKeysFor(t *testing.T) {
	k := keysFor("gate", domain.NewPair("ETH", "USDT"))
	want := []string{
		"book:gate:ETH/USDT:bids",
		"book:gate:ETH/USDT:asks",
		"book:gate:ETH/USDT:bid:size",
		"book:gate:ETH/USDT:ask:size",
		"book:gate:ETH/USDT:meta",
	}
	got := k.all()
	if len(got) != len(want) {
		t.Fatalf("keys = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRateLimitKeyWindows(t *testing.T) {
	base := time.Unix(1700000000, 0)
	a := rateLimitKey("1.2.3.4", time.Second, base)
	b := rateLimitKey("1.2.3.4", time.Second, base.Add(999*time.Millisecond))
	c := rateLimitKey("1.2.3.4", time.Second, base.Add(time.Second))
	if a != b {
		t.Fatalf("same window produced %q and %q", a, b)
	}
	if a == c {
		t.Fatalf("next window reused key %q", a)
	}
}

func TestLevels(t *testing.T) {
	zs := []redis.Z{
		{Score: 100, Member: "100"},
		{Score: 99.5, Member: "99.5"},
		{Score: 98, Member: 98},
	}
	sizes := map[string]string{"100": "2", "99.5": "0.25"}
	got := levels(zs, sizes)
	if len(got) != 2 {
		t.Fatalf("levels = %v, want 2 entries", got)
	}
	if got[0] != (domain.PriceLevel{Price: 100, Volume: 2}) || got[1] != (domain.PriceLevel{Price: 99.5, Volume: 0.25}) {
		t.Fatalf("levels = %v", got)
	}
}

func TestStreamMessages(t *testing.T) {
	got := streamMessages([]redis.XMessage{
		{ID: "1-0", Values: map[string]any{"payload": `{"kind":"status"}`}},
		{ID: "2-0", Values: map[string]any{"other": "x"}},
		{ID: "3-0", Values: map[string]any{"payload": []byte(`{}`)}},
	})
	if len(got) != 2 || got[0].ID != "1-0" || got[1].ID != "3-0" {
		t.Fatalf("messages = %+v", got)
	}
	if string(got[0].Payload) != `{"kind":"status"}` {
		t.Fatalf("payload = %s", got[0].Payload)
	}
}

func TestIsPattern(t *testing.T) {
	for ch, want := range map[string]bool{"ch:*": true, "ch:opportunity": false, "ch:[ab]": true} {
		if got := isPattern(ch); got != want {
			t.Fatalf("isPattern(%q) = %v", ch, got)
		}
	}
}

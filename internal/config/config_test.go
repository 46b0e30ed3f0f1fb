package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Fetch.Throttle.Duration != 100*time.Millisecond || cfg.Fetch.Concurrency != 10 ||
		cfg.Fetch.Retries != 3 || cfg.Fetch.Backoff.Duration != time.Second ||
		cfg.Fetch.CacheTTL.Duration != time.Minute {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	if cfg.Scan.FeeRate != 0.001 || cfg.Scan.Interval.Duration != time.Second || !cfg.Scan.RankByProfit {
		t.Fatalf("unexpected scan defaults: %+v", cfg.Scan)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "full"

[exchange]
id = "gate"

[scan]
interval = "250ms"
blacklist = ["USDC", "DAI"]

[spot]
exchanges = ["gate", "binance"]
order_sizes = { "BTC/USDT" = 0.002 }
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Exchange.ID != "gate" || cfg.Mode != "full" {
		t.Fatalf("file values not applied: %+v", cfg.Exchange)
	}
	if cfg.Scan.Interval.Duration != 250*time.Millisecond {
		t.Fatalf("interval = %v", cfg.Scan.Interval.Duration)
	}
	if len(cfg.Scan.Blacklist) != 2 || cfg.Spot.OrderSizes["BTC/USDT"] != 0.002 {
		t.Fatalf("lists not decoded: %+v %+v", cfg.Scan, cfg.Spot)
	}
	if cfg.Fetch.Retries != 3 {
		t.Fatal("defaults lost for unset sections")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Exchange.ID != "paper" {
		t.Fatalf("exchange = %q", cfg.Exchange.ID)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRIARB_EXCHANGE_ID", "binance")
	t.Setenv("TRIARB_SCAN_WHITELIST", "btc, eth ,")
	t.Setenv("TRIARB_FETCH_BACKOFF", "2s")
	t.Setenv("TRIARB_FETCH_CONCURRENCY", "4")
	t.Setenv("TRIARB_REDIS_ENABLED", "true")
	t.Setenv("TRIARB_FETCH_RETRIES", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Exchange.ID != "binance" {
		t.Fatalf("id = %q", cfg.Exchange.ID)
	}
	if len(cfg.Scan.Whitelist) != 2 || cfg.Scan.Whitelist[1] != "eth" {
		t.Fatalf("whitelist = %v", cfg.Scan.Whitelist)
	}
	if cfg.Fetch.Backoff.Duration != 2*time.Second || cfg.Fetch.Concurrency != 4 || !cfg.Redis.Enabled {
		t.Fatalf("overrides not applied: %+v", cfg.Fetch)
	}
	if cfg.Fetch.Retries != 3 {
		t.Fatal("unparsable override must leave the value alone")
	}
}

func TestAPIMode(t *testing.T) {
	tests := []struct {
		mode    string
		key     string
		sandbox bool
	}{
		{"TESTNET", "test-key", true},
		{"testnet", "test-key", true},
		{"PROD", "prod-key", false},
		{"", "prod-key", false},
	}
	for _, tc := range tests {
		t.Run(tc.mode, func(t *testing.T) {
			t.Setenv("TRIARB_API_MODE", tc.mode)
			t.Setenv("TRIARB_TESTNET_API_KEY", "test-key")
			t.Setenv("TRIARB_TESTNET_API_SECRET", "test-secret")
			t.Setenv("TRIARB_PROD_API_KEY", "prod-key")
			t.Setenv("TRIARB_PROD_API_SECRET", "prod-secret")

			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Exchange.APIKey != tc.key || cfg.Exchange.Sandbox != tc.sandbox {
				t.Fatalf("key %q sandbox %v", cfg.Exchange.APIKey, cfg.Exchange.Sandbox)
			}
		})
	}
}

func TestExplicitKeyBeatsAPIMode(t *testing.T) {
	t.Setenv("TRIARB_API_MODE", "TESTNET")
	t.Setenv("TRIARB_TESTNET_API_KEY", "test-key")
	t.Setenv("TRIARB_EXCHANGE_API_KEY", "explicit")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Exchange.APIKey != "explicit" {
		t.Fatalf("key = %q", cfg.Exchange.APIKey)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Fetch.Concurrency = 0
	cfg.Fetch.Retries = 0
	cfg.Scan.FeeRate = 1.5
	cfg.Exchange.APIKey = "only-key"
	cfg.Kafka.Enabled = true
	cfg.Kafka.Topic = ""
	cfg.S3.Enabled = true

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "loud"`,
		"fetch: concurrency",
		"fetch: retries",
		"scan: fee_rate",
		"api_key and api_secret",
		"kafka: topic",
		"s3: archiving reads from postgres",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("missing %q in:\n%s", want, msg)
		}
	}
}

func TestValidateSpotNeedsTwoExchanges(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "spot"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "at least two exchanges") {
		t.Fatalf("err = %v", err)
	}
	cfg.Spot.Exchanges = []string{"gate", "binance"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Exchange.APIKey = "k"
	cfg.Exchange.APISecret = "s"
	cfg.Postgres.Password = "pw"
	cfg.Notify.TelegramToken = "tok"
	cfg.Scan.Blacklist = []string{"USDC"}

	out := RedactedConfig(&cfg)
	if out.Exchange.APIKey != "***" || out.Exchange.APISecret != "***" || out.Postgres.Password != "***" || out.Notify.TelegramToken != "***" {
		t.Fatalf("secrets leaked: %+v", out.Exchange)
	}
	if out.Redis.Password != "" {
		t.Fatal("empty secrets must stay empty")
	}
	if cfg.Exchange.APIKey != "k" {
		t.Fatal("original mutated")
	}
	out.Scan.Blacklist[0] = "X"
	if cfg.Scan.Blacklist[0] != "USDC" {
		t.Fatal("slice shared with original")
	}
}

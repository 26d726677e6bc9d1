package queue

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	type payload struct {
		Symbol string  `json:"symbol"`
		Level  int     `json:"level"`
		Profit float64 `json:"profit"`
	}
	p, err := Decode[payload](json.RawMessage(`{"symbol":"BTCUSDT","level":2,"profit":12.5}`))
	if err != nil || p.Symbol != "BTCUSDT" || p.Level != 2 || p.Profit != 12.5 {
		t.Fatalf("Decode() = %+v, %v", p, err)
	}
	if _, err := Decode[payload](json.RawMessage(`{`)); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestRetrySchedule(t *testing.T) {
	cfg := Config{RetryLimit: 4, RetryDelay: 10 * time.Second, MaxRetryDelay: 30 * time.Second}
	cfg.setDefaults()
	want := []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		got, ok := cfg.retryAfter(i + 1)
		if !ok || got != w {
			t.Fatalf("attempt %d: %v, %v; want %v", i+1, got, ok, w)
		}
	}
	if _, ok := cfg.retryAfter(5); ok {
		t.Fatalf("attempt past the limit should not retry")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.setDefaults()
	if cfg.Workers != 1 || cfg.RetryDelay != 10*time.Second || cfg.MaxRetryDelay != 100*time.Second || cfg.Prefix == "" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if _, ok := cfg.retryAfter(1); ok {
		t.Fatalf("zero retry limit should not retry")
	}
}

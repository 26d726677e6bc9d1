package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimal = `
symbols: [BTCUSDT]
ai:
  technical_weight: 25
  providers:
    - {name: gpt, weight: 40, enabled: true}
    - {name: claude, weight: 35, enabled: true}
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Signal.Dedup.LockTTL != 30*time.Minute || c.Signal.Dedup.DailyCap != 6 {
		t.Fatalf("dedup defaults = %+v", c.Signal.Dedup)
	}
	if got := Triple(c.Position.Allocation); got != [3]float64{40, 35, 25} {
		t.Fatalf("allocation = %v", got)
	}
	if got := Triple(c.Exits.Percents); got != [3]float64{2.5, 4.5, 7} {
		t.Fatalf("percents = %v", got)
	}
	if !c.Exits.StaticFallback || !c.Signal.MultiTimeframe {
		t.Fatalf("bool defaults not applied")
	}
	if c.Server.Port != 8080 || c.Environment != "development" {
		t.Fatalf("server defaults = %d %s", c.Server.Port, c.Environment)
	}
}

func TestWeightsMustSumToHundred(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		ok   bool
	}{
		{"exact", minimal, true},
		{"within tolerance", `
symbols: [BTCUSDT]
ai:
  technical_weight: 20
  providers:
    - {name: gpt, weight: 40, enabled: true}
    - {name: claude, weight: 36, enabled: true}
`, true},
		{"too low", `
symbols: [BTCUSDT]
ai:
  technical_weight: 20
  providers:
    - {name: gpt, weight: 40, enabled: true}
    - {name: claude, weight: 35, enabled: false}
`, false},
		{"too high", `
symbols: [BTCUSDT]
ai:
  technical_weight: 30
  providers:
    - {name: gpt, weight: 50, enabled: true}
    - {name: claude, weight: 30, enabled: true}
`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.ok && err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrWeightsSum) {
				t.Fatalf("Parse() error = %v, want ErrWeightsSum", err)
			}
		})
	}
}

func TestValidateRejectsBadSections(t *testing.T) {
	cases := map[string]string{
		"no symbols":           "ai: {technical_weight: 100}",
		"descending percents":  minimal + "exits: {percents: [5, 4, 3]}",
		"allocation over 100":  minimal + "position: {allocation: [50, 40, 30]}",
		"kafka without broker": minimal + "kafka: {enabled: true, brokers: []}",
		"bad timezone":         minimal + "signal: {dedup: {timezone: Mars/Olympus}}",
	}
	for name, body := range cases {
		if _, err := Parse([]byte(body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SYMBOLS", "ETHUSDT,SOLUSDT")
	t.Setenv("AI_GPT_API_KEY", "secret")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if len(c.Symbols) != 2 || c.Symbols[1] != "SOLUSDT" {
		t.Fatalf("symbols = %v", c.Symbols)
	}
	if c.AI.Providers[0].APIKey != "secret" || c.Notification.ChatID != 42 {
		t.Fatalf("env overrides not applied: %+v / %d", c.AI.Providers[0], c.Notification.ChatID)
	}
	if w := c.SourceWeights(); len(w) != 2 || w["claude"] != 35 {
		t.Fatalf("SourceWeights() = %v", w)
	}
}

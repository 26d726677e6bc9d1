package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type capture struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (c *capture) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topic = topic
	c.batches = append(c.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestFieldsReachOutput(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{zl: zerolog.New(&buf)}
	l.Component("assembler").Info("candidate rejected",
		String("symbol", "BTCUSDT"),
		Float64("confidence", 61.5),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if line["component"] != "assembler" || line["symbol"] != "BTCUSDT" || line["error"] != "boom" {
		t.Fatalf("line = %v", line)
	}
	if line["confidence"] != 61.5 {
		t.Fatalf("confidence = %v", line["confidence"])
	}
}

func TestErrorFieldNil(t *testing.T) {
	f := Error(nil)
	if f.Value != "<nil>" {
		t.Fatalf("value = %v", f.Value)
	}
}

func TestCollectorAggregatesAndFlushesOnClose(t *testing.T) {
	pub := &capture{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "ops-logs", Publisher: pub})
	child := l.Component("monitor")

	for i := 0; i < 3; i++ {
		child.Warn("price unavailable", String("symbol", "ETHUSDT"), Float64("price", float64(i)))
	}
	child.Error("journal write failed", Error(errors.New("timeout")))
	child.Info("not collected")

	if got := l.collector.Pending(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
	l.RemoveCollector()

	if len(pub.batches) != 1 || pub.topic != "ops-logs" {
		t.Fatalf("batches = %d topic = %q", len(pub.batches), pub.topic)
	}
	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] = e.Count
	}
	if counts["price unavailable"] != 3 || counts["journal write failed"] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	child.Warn("after close")
	if len(pub.batches) != 1 {
		t.Fatalf("closed collector must drop lines")
	}
}

func TestCollectorThreshold(t *testing.T) {
	pub := &capture{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "ops", Publisher: pub})
	defer c.Close()

	c.AddLog("warn", "a", nil, "x.go:1")
	c.AddLog("warn", "b", nil, "x.go:2")

	deadline := time.Now().Add(time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.batches)
		pub.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("threshold flush did not publish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d", c.Pending())
	}
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"SignalEngine/internal/domain/models"
	pkgcache "SignalEngine/pkg/cache"
	pkgkafka "SignalEngine/pkg/kafka"
)

func TestSignalInsert(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := models.NewSignal("BTCUSDT", models.DirectionLong, now)
	a.TakeProfit.Levels[0].Price = 101
	b := models.NewSignal("ETHUSDT", models.DirectionShort, now)

	q, args, err := signalInsert("signals", []*models.Signal{a, nil, b})
	if err != nil {
		t.Fatalf("signalInsert() err = %v", err)
	}
	if strings.Count(q, "(?, ?") != 2 || !strings.HasPrefix(q, "INSERT INTO signals.signals") {
		t.Fatalf("unexpected query %q", q)
	}
	if len(args) != 30 || args[0] != a.ID || args[8] != 101.0 {
		t.Fatalf("unexpected args %v", args[:9])
	}
	var back models.Signal
	if err := json.Unmarshal([]byte(args[14].(string)), &back); err != nil || back.ID != a.ID {
		t.Fatalf("payload round trip failed: %v", err)
	}

	if q, _, _ := signalInsert("signals", nil); q != "" {
		t.Fatalf("empty batch should produce no query")
	}
}

type fakeProducer struct {
	topics []string
	msgs   [][]pkgkafka.Message
	err    error
}

func (f *fakeProducer) PublishBatch(_ context.Context, topic string, m []pkgkafka.Message) error {
	f.topics = append(f.topics, topic)
	f.msgs = append(f.msgs, m)
	return f.err
}

func (f *fakeProducer) Close() error { return nil }

func TestKafkaSignalPublisher(t *testing.T) {
	fp := &fakeProducer{}
	p := &KafkaSignalPublisher{producer: fp, signalsTopic: "sig", eventsTopic: "evt"}
	s := models.NewSignal("BTCUSDT", models.DirectionLong, time.Now())

	if err := p.PublishSignals(context.Background(), []*models.Signal{nil}); err != nil || len(fp.topics) != 0 {
		t.Fatalf("nil-only batch should not publish")
	}
	if err := p.PublishSignal(context.Background(), s); err != nil {
		t.Fatalf("PublishSignal() err = %v", err)
	}
	if err := p.PublishEvent(context.Background(), models.PositionEvent{Symbol: "BTCUSDT", Kind: models.EventStopLoss}); err != nil {
		t.Fatalf("PublishEvent() err = %v", err)
	}
	if fp.topics[0] != "sig" || fp.topics[1] != "evt" || string(fp.msgs[0][0].Key) != "BTCUSDT" {
		t.Fatalf("unexpected publish calls %v", fp.topics)
	}

	fp.err = errors.New("broker down")
	if err := p.PublishSignal(context.Background(), s); err == nil {
		t.Fatalf("expected error to surface")
	}
}

func TestCacheDedupMirror(t *testing.T) {
	mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0))
	defer mc.Close()
	m := NewCacheDedupMirror(mc)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 2; i++ {
		s := models.NewSignal("BTCUSDT", models.DirectionLong, now)
		if err := m.MirrorRegistration(ctx, s, 30*time.Minute, "2024-05-01", 7*24*time.Hour); err != nil {
			t.Fatalf("MirrorRegistration() err = %v", err)
		}
	}
	var n int64
	if err := mc.Get(ctx, DailyKey("BTCUSDT", "2024-05-01"), &n); err != nil || n != 2 {
		t.Fatalf("daily counter = %d, %v", n, err)
	}
	l, err := m.Lock(ctx, "BTCUSDT")
	if err != nil || l.Symbol != "BTCUSDT" || l.TTL != 30*time.Minute {
		t.Fatalf("Lock() = %+v, %v", l, err)
	}
}

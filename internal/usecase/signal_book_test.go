package usecase

import (
	"errors"
	"testing"
	"time"

	"SignalEngine/internal/domain/models"
)

func TestSignalBookMarkExecuted(t *testing.T) {
	c := newClock()
	b := NewSignalBook(30*time.Minute, time.Hour).WithClock(c.now)
	sig := models.NewSignal("BTCUSDT", models.DirectionLong, c.now())
	b.Add(sig)

	got, err := b.MarkExecuted(sig.ID)
	if err != nil || got.Status != models.SignalExecuted {
		t.Fatalf("mark executed = %v, %v", got.Status, err)
	}
	if sig.Status != models.SignalGenerated {
		t.Fatalf("book must keep its own copy")
	}
	if _, err := b.MarkExecuted(sig.ID); !errors.Is(err, ErrSignalNotPending) {
		t.Fatalf("second execution err = %v", err)
	}
	if _, err := b.MarkExecuted("missing"); !errors.Is(err, ErrSignalNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestSignalBookExpire(t *testing.T) {
	c := newClock()
	b := NewSignalBook(30*time.Minute, time.Hour).WithClock(c.now)
	old := models.NewSignal("BTCUSDT", models.DirectionLong, c.now())
	b.Add(old)
	c.advance(20 * time.Minute)
	fresh := models.NewSignal("ETHUSDT", models.DirectionShort, c.now())
	b.Add(fresh)

	c.advance(15 * time.Minute)
	expired := b.Expire()
	if len(expired) != 1 || expired[0].ID != old.ID {
		t.Fatalf("expired = %+v", expired)
	}
	if s, _ := b.Get(old.ID); s.Status != models.SignalExpired {
		t.Fatalf("old status = %s", s.Status)
	}
	if _, err := b.MarkExecuted(old.ID); !errors.Is(err, ErrSignalNotPending) {
		t.Fatalf("expired signal must not execute, err = %v", err)
	}

	c.advance(time.Hour)
	b.Expire()
	if b.Len() != 0 {
		t.Fatalf("retention should drop everything, left %d", b.Len())
	}
}

func TestSignalBookExecuteAfterTTL(t *testing.T) {
	c := newClock()
	b := NewSignalBook(30*time.Minute, time.Hour).WithClock(c.now)
	sig := models.NewSignal("BTCUSDT", models.DirectionLong, c.now())
	b.Add(sig)
	c.advance(31 * time.Minute)
	if _, err := b.MarkExecuted(sig.ID); !errors.Is(err, ErrSignalNotPending) {
		t.Fatalf("late fill err = %v", err)
	}
}

func TestSignalBookList(t *testing.T) {
	c := newClock()
	b := NewSignalBook(30*time.Minute, time.Hour).WithClock(c.now)
	for _, sym := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"} {
		b.Add(models.NewSignal(sym, models.DirectionLong, c.now()))
		c.advance(time.Minute)
	}
	all := b.List("", "", 0)
	if len(all) != 3 || all[0].CreatedAt.Before(all[2].CreatedAt) {
		t.Fatalf("list should be newest first: %+v", all)
	}
	if got := b.List("BTCUSDT", models.SignalGenerated, 1); len(got) != 1 || got[0].Symbol != "BTCUSDT" {
		t.Fatalf("filtered = %+v", got)
	}
	if got := b.List("", models.SignalExecuted, 0); len(got) != 0 {
		t.Fatalf("status filter = %+v", got)
	}
}

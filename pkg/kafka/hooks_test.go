package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestHookFuncsOptional(t *testing.T) {
	var h HookFuncs
	ctx := context.Background()
	gotCtx, _, data, err := h.BeforeHandle(ctx, "executions", kafka.Message{}, []byte("x"))
	if err != nil || gotCtx != ctx || string(data) != "x" {
		t.Fatalf("BeforeHandle() = %q, %v", data, err)
	}
	h.AfterHandle(ctx, "executions", kafka.Message{}, nil, nil)
	h.OnError(ctx, "executions", kafka.Message{}, nil, errors.New("x"))

	var seen error
	h.Err = func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { seen = err }
	h.OnError(ctx, "executions", kafka.Message{}, nil, &HookError{Code: "ERR_VALIDATION"})
	var herr *HookError
	if !errors.As(seen, &herr) || herr.Error() != "ERR_VALIDATION" {
		t.Fatalf("OnError saw %v", seen)
	}
}

func TestHookErrorWraps(t *testing.T) {
	base := errors.New("unknown position")
	err := &HookError{Code: "ERR_VALIDATION", Err: base}
	if !errors.Is(err, base) || err.Error() != "ERR_VALIDATION: unknown position" {
		t.Fatalf("err = %v", err)
	}
}

func TestStartTimeAndBackoff(t *testing.T) {
	now := time.Now()
	if got, ok := StartTime(WithStartTime(context.Background(), now)); !ok || !got.Equal(now) {
		t.Fatalf("StartTime() = %v, %v", got, ok)
	}
	if _, ok := StartTime(context.Background()); ok {
		t.Fatalf("StartTime on bare context")
	}
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		if d <= 0 || d > 100*time.Millisecond {
			t.Fatalf("attempt %d backoff %v out of range", attempt, d)
		}
	}
}

func TestLaneForIsStable(t *testing.T) {
	if laneFor("executions", 7, 1) != 0 {
		t.Fatalf("single lane must be 0")
	}
	for p := 0; p < 16; p++ {
		a, b := laneFor("executions", p, 4), laneFor("executions", p, 4)
		if a != b || a < 0 || a >= 4 {
			t.Fatalf("partition %d lanes %d/%d", p, a, b)
		}
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"SignalEngine/internal/domain/models"
)

type positionsStub []models.Position

func (p positionsStub) Active() []models.Position { return p }

type signalsStub struct {
	gotSymbol string
	gotStatus models.SignalStatus
	gotLimit  int
}

func (s *signalsStub) List(symbol string, status models.SignalStatus, limit int) []models.Signal {
	s.gotSymbol, s.gotStatus, s.gotLimit = symbol, status, limit
	return []models.Signal{{ID: "a", Symbol: "BTCUSDT", Status: models.SignalGenerated}}
}

type guardStub struct{}

func (guardStub) Snapshot(symbol string) models.DedupSnapshot {
	return models.DedupSnapshot{Symbol: symbol, DailyKey: "2024-10-10", DailyCount: 2}
}

type journalStub struct {
	from, to time.Time
	err      error
	health   error
}

func (j *journalStub) Init(context.Context) error { return nil }
func (j *journalStub) StoreSignals(context.Context, []*models.Signal) error { return nil }
func (j *journalStub) StorePosition(context.Context, *models.Position) error { return nil }
func (j *journalStub) Health(context.Context) error { return j.health }
func (j *journalStub) Close() error { return nil }
func (j *journalStub) QuerySignals(_ context.Context, symbol string, from, to time.Time, _ int) ([]*models.Signal, error) {
	j.from, j.to = from, to
	if j.err != nil {
		return nil, j.err
	}
	return []*models.Signal{
		{ID: "x", Symbol: symbol, Status: models.SignalExecuted},
		{ID: "y", Symbol: symbol, Status: models.SignalExpired},
	}, nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type listData struct {
	Rows  []map[string]any `json:"rows"`
	Total int64            `json:"total"`
}

func serve(t *testing.T, h *StatusHandler, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v (%s)", target, err, rec.Body.String())
	}
	return rec, env
}

func TestPositionsFiltersBySymbol(t *testing.T) {
	h := NewStatusHandler(nil, positionsStub{{Symbol: "BTCUSDT"}, {Symbol: "ETHUSDT"}}, &signalsStub{}, guardStub{}, nil)
	rec, env := serve(t, h, "/api/positions?symbol=ethusdt")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var data listData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data.Total != 1 || data.Rows[0]["symbol"] != "ETHUSDT" {
		t.Fatalf("rows = %+v", data)
	}
}

func TestSignalsFromBookUsesDefaults(t *testing.T) {
	book := &signalsStub{}
	h := NewStatusHandler(nil, positionsStub{}, book, guardStub{}, nil)
	rec, _ := serve(t, h, "/api/signals?symbol=btcusdt&status=GENERATED")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if book.gotSymbol != "BTCUSDT" || book.gotStatus != models.SignalGenerated || book.gotLimit != 50 {
		t.Fatalf("list args = %+v", book)
	}
}

func TestSignalsValidation(t *testing.T) {
	h := NewStatusHandler(nil, positionsStub{}, &signalsStub{}, guardStub{}, nil)
	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"bad status", "/api/signals?status=LOST", http.StatusBadRequest},
		{"limit too large", "/api/signals?limit=501", http.StatusBadRequest},
		{"history without journal", "/api/signals?from=1728554400", http.StatusServiceUnavailable},
		{"dedup needs symbol", "/api/dedup", http.StatusBadRequest},
		{"malformed symbol", "/api/positions?symbol=BTC-USD", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := serve(t, h, tc.target)
			if rec.Code != tc.code || env.Status != tc.code {
				t.Fatalf("code = %d/%d, want %d", rec.Code, env.Status, tc.code)
			}
		})
	}
}

func TestSignalsFromJournal(t *testing.T) {
	jrn := &journalStub{}
	h := NewStatusHandler(nil, positionsStub{}, &signalsStub{}, guardStub{}, jrn)
	now := time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	rec, env := serve(t, h, "/api/signals?symbol=BTCUSDT&status=EXECUTED&from=2024-10-10T00:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !jrn.to.Equal(now) || jrn.from.Hour() != 0 {
		t.Fatalf("range = %v..%v", jrn.from, jrn.to)
	}
	var data listData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data.Total != 1 || data.Rows[0]["id"] != "x" {
		t.Fatalf("status filter not applied: %+v", data)
	}

	rec, _ = serve(t, h, "/api/signals?from=2024-10-11T00:00:00Z&to=2024-10-10T00:00:00Z")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted range code = %d", rec.Code)
	}

	jrn.err = errors.New("clickhouse down")
	rec, _ = serve(t, h, "/api/signals?to=1728561600")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("journal failure code = %d", rec.Code)
	}
}

func TestDedupAndHealth(t *testing.T) {
	jrn := &journalStub{}
	h := NewStatusHandler(nil, positionsStub{}, &signalsStub{}, guardStub{}, jrn)

	_, env := serve(t, h, "/api/dedup?symbol=solusdt")
	var snap models.DedupSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("data: %v", err)
	}
	if snap.Symbol != "SOLUSDT" || snap.DailyCount != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	if rec, _ := serve(t, h, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
	jrn.health = errors.New("timeout")
	if rec, _ := serve(t, h, "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy = %d", rec.Code)
	}
}

package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domrepo "SignalEngine/internal/domain/repository"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewProvider("", "", false, WithBaseURL(srv.URL), WithTimeout(2*time.Second))
}

func TestGetTicker(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/ticker/24hr" || r.URL.Query().Get("symbol") != "BTCUSDT" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","priceChangePercent":"2.50","lastPrice":"50000.1","highPrice":"51000","lowPrice":"48000","volume":"1234.5","count":987,"closeTime":1700000000000}]`))
	})
	tk, err := p.GetTicker(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetTicker() err = %v", err)
	}
	if tk.Price != 50000.1 || tk.Change24h != 2.5 || tk.High24h != 51000 || tk.Low24h != 48000 || tk.Count != 987 {
		t.Fatalf("unexpected ticker %+v", tk)
	}
}

func TestGetCandles(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/fapi/v1/klines" || q.Get("interval") != "1h" || q.Get("limit") != "2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`[
[1700000000000,"100","110","95","105","10",1700003599999,"1000",5,"4","400","0"],
[1700003600000,"105","112","bad","108","12",1700007199999,"1200",6,"5","500","0"]]`))
	})
	cs, err := p.GetCandles(context.Background(), "BTCUSDT", domrepo.TF1h, 2)
	if err != nil {
		t.Fatalf("GetCandles() err = %v", err)
	}
	if len(cs) != 2 || cs[0].Close != 105 || !cs[0].Valid() {
		t.Fatalf("unexpected candles %+v", cs)
	}
	if cs[1].Valid() {
		t.Fatalf("malformed bar should be invalid")
	}
	if _, err := p.GetCandles(context.Background(), "BTCUSDT", "1d", 2); err == nil {
		t.Fatalf("expected error for unsupported timeframe")
	}
}

func TestGetTickerFailure(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":-1000,"msg":"down"}`))
	})
	if _, err := p.GetTicker(context.Background(), "BTCUSDT"); err == nil {
		t.Fatalf("expected error")
	}
}

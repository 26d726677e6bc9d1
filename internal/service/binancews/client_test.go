package binancews

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDecode(t *testing.T) {
	tk, ok := decode([]byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1700000000000,"s":"BTCUSDT","c":"50123.5"}}`))
	if !ok || tk.Symbol != "BTCUSDT" || tk.Price != 50123.5 {
		t.Fatalf("decode() = %+v, %v", tk, ok)
	}
	if _, ok := decode([]byte(`{"result":null,"id":1}`)); ok {
		t.Fatalf("ack frame should be skipped")
	}
	if _, ok := decode([]byte(`{"e":"24hrMiniTicker","s":"ETHUSDT","c":"x"}`)); ok {
		t.Fatalf("bad price should be skipped")
	}
}

func TestStreamEndToEnd(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req subscribeReq
		if err := conn.ReadJSON(&req); err != nil || req.Method != "SUBSCRIBE" || len(req.Params) != 1 || req.Params[0] != "btcusdt@miniTicker" {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1,"s":"BTCUSDT","c":"101"}}`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c := New("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"BTCUSDT"}, time.Millisecond, 0, nil)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() err = %v", err)
	}
	defer c.Close()
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe() err = %v", err)
	}
	ticks, _ := c.Read(ctx)
	select {
	case tk := <-ticks:
		if tk == nil || tk.Price != 101 {
			t.Fatalf("tick = %+v", tk)
		}
	case <-ctx.Done():
		t.Fatalf("no tick received")
	}
}

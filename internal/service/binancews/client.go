package binancews

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"SignalEngine/internal/domain/models"
	drepo "SignalEngine/internal/domain/repository"
	"SignalEngine/pkg/logger"
)

// Client implements a PriceStream over the Binance combined mini-ticker stream.
type Client struct {
	streamURL      string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	lgr            *logger.Logger

	wmu       sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

func New(streamURL string, symbols []string, reconnectDelay, pingInterval time.Duration, lgr *logger.Logger) *Client {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &Client{
		streamURL:      streamURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		lgr:            lgr.Component("binancews"),
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.streamURL, nil)
	if err != nil {
		return fmt.Errorf("binance stream connect: %w", err)
	}
	c.wmu.Lock()
	c.conn = conn
	c.wmu.Unlock()
	c.connected.Store(true)
	c.lgr.Info("connected", logger.String("url", c.streamURL))
	return nil
}

type subscribeReq struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Subscribe asks for the mini-ticker of every configured symbol.
func (c *Client) Subscribe(ctx context.Context) error {
	if !c.connected.Load() {
		return fmt.Errorf("binance stream not connected")
	}
	params := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		params = append(params, strings.ToLower(s)+"@miniTicker")
	}
	if err := c.write(func(conn *websocket.Conn) error {
		return conn.WriteJSON(subscribeReq{Method: "SUBSCRIBE", Params: params, ID: time.Now().UnixMilli()})
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.lgr.Info("subscribed", logger.Int("symbols", len(params)))
	return nil
}

func (c *Client) write(fn func(*websocket.Conn) error) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("binance stream conn nil")
	}
	return fn(c.conn)
}

type miniTicker struct {
	Event  string `json:"e"`
	Time   int64  `json:"E"`
	Symbol string `json:"s"`
	Close  string `json:"c"`
}

type envelope struct {
	Stream string     `json:"stream"`
	Data   miniTicker `json:"data"`
}

// Read streams ticks and errors until ctx is done or the socket fails.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	go func() {
		if c.pingInterval <= 0 {
			return
		}
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.write(func(conn *websocket.Conn) error {
					return conn.WriteMessage(websocket.PingMessage, nil)
				})
			}
		}
	}()

	go func() {
		defer close(ticks)
		defer close(errs)
		c.wmu.Lock()
		conn := c.conn
		c.wmu.Unlock()
		if conn == nil {
			errs <- fmt.Errorf("binance stream conn nil")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("binance stream read: %w", err)
				}
				return
			}
			t, ok := decode(b)
			if !ok {
				continue
			}
			select {
			case ticks <- t:
			default:
				// drop on backpressure
			}
		}
	}()

	return ticks, errs
}

// decode accepts both combined-stream envelopes and raw payloads.
// Subscription acks and other frames are skipped.
func decode(b []byte) (*models.Tick, bool) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, false
	}
	m := env.Data
	if env.Stream == "" {
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, false
		}
	}
	if m.Event != "24hrMiniTicker" || m.Symbol == "" {
		return nil, false
	}
	p, err := strconv.ParseFloat(m.Close, 64)
	if err != nil {
		return nil, false
	}
	return &models.Tick{Symbol: m.Symbol, Price: p, Time: time.UnixMilli(m.Time)}, true
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) IsConnected() bool { return c.connected.Load() }

var _ drepo.PriceStream = (*Client)(nil)

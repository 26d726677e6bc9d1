package usecase

import (
	"context"

	"SignalEngine/internal/domain/models"
	drepo "SignalEngine/internal/domain/repository"
	mid "SignalEngine/internal/middleware"
	"SignalEngine/pkg/logger"
)

// PriceCollector reads the price stream and feeds ticks through the pipeline
// into the price cache.
type PriceCollector struct {
	stream  drepo.PriceStream
	pipe    *mid.TickPipeline
	metrics drepo.Metrics
	lgr     *logger.Logger
}

func NewPriceCollector(stream drepo.PriceStream, pipe *mid.TickPipeline, metrics drepo.Metrics, lgr *logger.Logger) *PriceCollector {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &PriceCollector{stream: stream, pipe: pipe, metrics: metrics, lgr: lgr.Component("collector")}
}

// IsConnected returns true if the price stream is connected.
func (c *PriceCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *PriceCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	tCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tCh, errCh)
	return nil
}

func (c *PriceCollector) consume(ctx context.Context, tCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err == nil {
				continue
			}
			c.metrics.RecordError("stream")
			c.lgr.Warn("price stream error, reconnecting", logger.Error(err))
			if !c.reconnect(ctx) {
				return
			}
			tCh, errCh = c.stream.Read(ctx)
		case t, ok := <-tCh:
			if !ok {
				tCh = nil
				continue
			}
			if t == nil {
				continue
			}
			if err := c.pipe.Process(ctx, t); err != nil {
				c.lgr.Debug("tick dropped", logger.String("symbol", t.Symbol), logger.Error(err))
			}
		}
	}
}

// reconnect retries until it succeeds or ctx is done. The stream applies its
// own delay between attempts.
func (c *PriceCollector) reconnect(ctx context.Context) bool {
	for ctx.Err() == nil {
		err := c.stream.Reconnect(ctx)
		if err == nil {
			return true
		}
		c.metrics.RecordError("stream_reconnect")
		c.lgr.Error("reconnect failed", logger.Error(err))
	}
	return false
}

// Shutdown stops the pipeline and closes the stream.
func (c *PriceCollector) Shutdown(ctx context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}

package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"SignalEngine/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads the registered topics in one consumer group. Each
// (topic, partition) always lands on the same worker, so reports about one
// position are applied in log order.
type Consumer struct {
	cfg      *ConsumerConfig
	lgr      *logger.Logger
	hook     ConsumerHook
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	lanes    []chan kafka.Message
	dlq      *kafka.Writer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stop   sync.Once
}

func NewConsumer(lgr *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "signal-engine",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if lgr == nil {
		lgr = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		lgr:      lgr.Component("kafka-consumer"),
		hook:     NoopHook{},
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	initConsumerMetrics()
	return c, nil
}

// RegisterHandler must be called before Start. One handler per topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.lgr.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	c.lanes = make([]chan kafka.Message, c.cfg.WorkerCount)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.wg.Add(1)
		go c.work(c.lanes[i])
	}
	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers[topic] = r
		c.wg.Add(1)
		go c.fetch(topic, r)
	}
	c.lgr.Info("consuming", logger.Int("workers", c.cfg.WorkerCount), logger.Int("topics", len(c.readers)))
	return nil
}

// Stop cancels fetches and in-flight retries, then closes readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stop.Do(func() {
		c.cancel()
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("consumer stop: %w", ctx.Err())
		}
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.lgr.Warn("close reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
	})
	return err
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.wg.Done()
	for {
		km, err := r.FetchMessage(c.ctx)
		if c.ctx.Err() != nil {
			return
		}
		if err != nil {
			c.lgr.Warn("fetch failed", logger.String("topic", topic), logger.Error(err))
			sleepCtx(c.ctx, time.Second)
			continue
		}
		lane := c.lanes[laneFor(topic, km.Partition, len(c.lanes))]
		select {
		case lane <- km:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.ctx.Done():
			return
		}
	}
}

// laneFor maps a partition to a worker.
func laneFor(topic string, partition, lanes int) int {
	if lanes <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	_, _ = h.Write([]byte(strconv.Itoa(partition)))
	return int(h.Sum32() % uint32(lanes))
}

func (c *Consumer) work(lane <-chan kafka.Message) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case km := <-lane:
			c.handle(km)
		}
	}
}

func (c *Consumer) handle(km kafka.Message) {
	start := time.Now()
	handler := c.handlers[km.Topic]
	attempts, err := c.attempt(handler, km, start)
	if errors.Is(err, context.Canceled) && c.ctx.Err() != nil {
		// Uncommitted; the group redelivers it after restart.
		return
	}
	if err != nil {
		c.hook.OnError(c.ctx, km.Topic, km, km.Value, err)
		c.lgr.Warn("message failed",
			logger.String("topic", km.Topic),
			logger.Int("attempts", attempts),
			logger.Error(err))
		if !c.park(km, attempts, err) {
			// Without a DLQ the offset stays put and the message is retried
			// after a rebalance.
			return
		}
	}
	c.commit(km)
	consumerHandleLatency.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
}

// attempt runs the handler with retries. HookErrors are not retried.
func (c *Consumer) attempt(handler MessageHandler, km kafka.Message, start time.Time) (n int, err error) {
	for n = 1; ; n++ {
		err = c.handleOnce(handler, km, start)
		var herr *HookError
		if err == nil || errors.As(err, &herr) || n > c.cfg.RetryMax {
			return n, err
		}
		if !sleepCtx(c.ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, n)) {
			return n, context.Canceled
		}
	}
}

func (c *Consumer) handleOnce(handler MessageHandler, km kafka.Message, start time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("%v", r)}
		}
	}()
	ctx, hm, data, err := c.hook.BeforeHandle(WithStartTime(c.ctx, start), km.Topic, km, km.Value)
	if err != nil {
		return err
	}
	err = handler.Handle(ctx, data)
	c.hook.AfterHandle(ctx, km.Topic, hm, data, err)
	return err
}

func (c *Consumer) park(km kafka.Message, attempts int, cause error) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   km.Key,
		Value: km.Value,
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(km.Topic)},
			{Key: "source_offset", Value: []byte(strconv.FormatInt(km.Offset, 10))},
			{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.lgr.Error("dlq write failed", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(km kafka.Message) {
	r := c.readers[km.Topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		sleepCtx(c.ctx, backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.lgr.Error("commit failed",
		logger.String("topic", km.Topic),
		logger.Int64("offset", km.Offset),
		logger.Error(err))
}

// sleepCtx reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoffWithJitter doubles min per attempt up to max and removes up to half
// of it at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d - time.Duration(rand.Int63n(int64(d)/2+1))
}

var (
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerOnce          sync.Once
)

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "signal_engine_kafka_consumer_lane_depth", Help: "Messages waiting per worker lane"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "signal_engine_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
	})
}

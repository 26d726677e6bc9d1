package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"SignalEngine/pkg/logger"
)

// RedisQueue delivers notifications through a Redis list. Failed messages
// wait in a sorted set scored by their due time; exhausted ones land in a
// dead letter list for inspection.
type RedisQueue struct {
	lgr    *logger.Logger
	cfg    Config
	client *redis.Client

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	pollEvery time.Duration
	now       func() time.Time
}

func NewRedisQueue(lgr *logger.Logger, client *redis.Client, cfg Config) *RedisQueue {
	cfg.setDefaults()
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &RedisQueue{
		lgr:       lgr.Component("queue"),
		cfg:       cfg,
		client:    client,
		jobs:      make(map[string]Job),
		pollEvery: time.Second,
		now:       time.Now,
	}
}

// RegisterJob routes messages of job.Type() to job. Later registrations of
// the same type are ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		r.lgr.Warn("job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
}

// Start pings Redis and launches the workers and the retry mover.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.work(ctx)
	}
	r.wg.Add(1)
	go r.moveDue(ctx)

	r.lgr.Info("notification queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.Int("jobs", len(r.jobs)),
		logger.String("prefix", r.cfg.Prefix))
	return nil
}

// Stop cancels the workers and waits for in-flight deliveries within ctx.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

// PublishMessage enqueues payload for the job registered under msgType.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type %q", msgType)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{ID: uuid.NewString(), Type: msgType, Payload: raw, Timestamp: r.now()})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return r.client.LPush(ctx, r.key("messages"), data).Err()
}

func (r *RedisQueue) work(ctx context.Context) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		res, err := r.client.BRPop(ctx, time.Second, r.key("messages")).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			continue
		default:
			r.lgr.Error("queue pop failed", logger.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.lgr.Error("dropping malformed message", logger.Error(err))
			continue
		}
		r.deliver(ctx, msg)
	}
}

func (r *RedisQueue) deliver(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.lgr.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.park(r.key("dlq"), msg, 0)
		return
	}

	err := job.Handle(ctx, msg.Payload)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	msg.Attempts++
	msg.LastError = err.Error()
	wait, ok := r.cfg.retryAfter(msg.Attempts)
	if !ok {
		r.lgr.Error("notification dropped after retries",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		r.park(r.key("dlq"), msg, 0)
		return
	}
	r.lgr.Warn("notification failed, retrying",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.Duration("wait", wait),
		logger.Error(err))
	r.park(r.key("retry"), msg, wait)
}

// park writes msg to the dead letter list, or to the retry set when wait
// is positive.
func (r *RedisQueue) park(key string, msg Message, wait time.Duration) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.lgr.Error("marshal message", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if wait > 0 {
		due := float64(r.now().Add(wait).UnixMilli())
		err = r.client.ZAdd(ctx, key, redis.Z{Score: due, Member: data}).Err()
	} else {
		err = r.client.LPush(ctx, key, data).Err()
	}
	if err != nil {
		r.lgr.Error("park message", logger.String("key", key), logger.Error(err))
	}
}

func (r *RedisQueue) moveDue(ctx context.Context) {
	defer r.wg.Done()
	t := time.NewTicker(r.pollEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		due, err := r.client.ZRangeByScore(ctx, r.key("retry"), &redis.ZRangeBy{
			Min: "0",
			Max: strconv.FormatInt(r.now().UnixMilli(), 10),
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				r.lgr.Error("read retry set", logger.Error(err))
			}
			continue
		}
		for _, member := range due {
			pipe := r.client.TxPipeline()
			pipe.ZRem(ctx, r.key("retry"), member)
			pipe.LPush(ctx, r.key("messages"), member)
			if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
				r.lgr.Error("requeue retry", logger.Error(err))
			}
		}
	}
}

func (r *RedisQueue) key(name string) string { return r.cfg.Prefix + ":" + name }

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

var _ Publisher = (*RedisQueue)(nil)

package cache

import "time"

// RedisOption configures the Redis cache.
type RedisOption func(*redisOptions)

type redisOptions struct {
	addr     string
	password string
	db       int
	poolSize int
	prefix   string
}

func WithRedisAddr(addr string) RedisOption {
	return func(o *redisOptions) { o.addr = addr }
}

func WithRedisAuth(password string, db int) RedisOption {
	return func(o *redisOptions) { o.password, o.db = password, db }
}

// WithRedisPool sets the connection pool size. Zero keeps the default.
func WithRedisPool(size int) RedisOption {
	return func(o *redisOptions) {
		if size > 0 {
			o.poolSize = size
		}
	}
}

// WithRedisPrefix namespaces every key, e.g. signal_engine:dedup:lock:BTCUSDT.
func WithRedisPrefix(prefix string) RedisOption {
	return func(o *redisOptions) { o.prefix = prefix }
}

// MemoryOption configures the memory cache.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	maxSize int
	cleanup time.Duration
	now     func() time.Time
}

func WithMemoryMaxSize(size int) MemoryOption {
	return func(o *memoryOptions) { o.maxSize = size }
}

// WithMemoryCleanup sets the sweep interval. Zero disables the sweeper.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(o *memoryOptions) { o.cleanup = interval }
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) { o.now = now }
}

package clickhouse

import (
	"fmt"
	"time"
)

// Option configures the journal connection.
type Option func(*Options)

// Options holds the connection settings rendered into the DSN and the
// database/sql pool.
type Options struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	UseHTTP  bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout time.Duration
	ReadTimeout time.Duration
	MaxExecTime time.Duration

	// Journal rows are written in small batches, so async inserts let the
	// server coalesce them.
	AsyncInsert  bool
	WaitForAsync bool
}

func defaultOptions() Options {
	return Options{
		Port:            9000,
		Database:        "default",
		User:            "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
	}
}

func (o Options) validate() error {
	if o.Host == "" {
		return fmt.Errorf("host is required")
	}
	if o.Port <= 0 {
		return fmt.Errorf("invalid port %d", o.Port)
	}
	if o.MaxIdleConns > o.MaxOpenConns {
		return fmt.Errorf("max idle %d exceeds max open %d", o.MaxIdleConns, o.MaxOpenConns)
	}
	return nil
}

func WithAddress(host string, port int) Option {
	return func(o *Options) { o.Host, o.Port = host, port }
}

func WithDatabase(database string) Option {
	return func(o *Options) { o.Database = database }
}

func WithCredentials(user, password string) Option {
	return func(o *Options) { o.User, o.Password = user, password }
}

// WithPool sizes the database/sql pool. A zero lifetime keeps the default.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(o *Options) {
		o.MaxOpenConns, o.MaxIdleConns = maxOpen, maxIdle
		if lifetime > 0 {
			o.ConnMaxLifetime = lifetime
		}
	}
}

// WithTimeouts sets dial, read and server-side execution limits. Zero values
// are left out of the DSN.
func WithTimeouts(dial, read, exec time.Duration) Option {
	return func(o *Options) {
		o.DialTimeout, o.ReadTimeout, o.MaxExecTime = dial, read, exec
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(useHTTP bool) Option {
	return func(o *Options) { o.UseHTTP = useHTTP }
}

func WithAsyncInsert(enabled, wait bool) Option {
	return func(o *Options) { o.AsyncInsert, o.WaitForAsync = enabled, wait }
}

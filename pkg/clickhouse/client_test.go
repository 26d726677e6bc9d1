package clickhouse

import (
	"strings"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(Options{
		Host:         "ch",
		Port:         9000,
		Database:     "signals",
		User:         "u",
		Password:     "p@ss",
		DialTimeout:  5 * time.Second,
		MaxExecTime:  30 * time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
	})
	for _, want := range []string{"clickhouse://u:p%40ss@ch:9000/signals?", "dial_timeout=5s", "max_execution_time=30", "async_insert=1", "wait_for_async_insert=1"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
	if got := BuildDSN(Options{Host: "ch", Port: 8123, UseHTTP: true}); !strings.HasPrefix(got, "http://") {
		t.Fatalf("http dsn = %q", got)
	}
}

func TestOptionsValidate(t *testing.T) {
	o := defaultOptions()
	if err := o.validate(); err == nil {
		t.Fatalf("missing host accepted")
	}
	WithAddress("ch", 9000)(&o)
	WithPool(2, 4, 0)(&o)
	if err := o.validate(); err == nil {
		t.Fatalf("idle > open accepted")
	}
	WithPool(8, 4, 0)(&o)
	if err := o.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if o.ConnMaxLifetime != 5*time.Minute {
		t.Fatalf("lifetime = %v", o.ConnMaxLifetime)
	}
}

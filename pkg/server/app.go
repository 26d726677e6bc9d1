package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalEngine/internal/usecase"
	pkgcache "SignalEngine/pkg/cache"
	pkgch "SignalEngine/pkg/clickhouse"
	"SignalEngine/pkg/config"
	xhttp "SignalEngine/pkg/http"
	pkgkafka "SignalEngine/pkg/kafka"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/queue"
)

// Deps lists everything the app starts or closes. Optional parts are nil
// when their config section is disabled.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Collector     *usecase.PriceCollector
	Generator     *usecase.SignalGenerator
	Monitor       *usecase.PositionMonitor
	Consumer      *pkgkafka.Consumer
	Executions    *usecase.ExecutionHandler
	Notifications *queue.RedisQueue
	Dispatcher    *usecase.SignalDispatcher
	HTTP          *xhttp.Server
	ClickHouse    *pkgch.Client
	Redis         *pkgcache.RedisCache
}

// App owns the process lifecycle.
type App struct {
	Deps
	lgr *logger.Logger
}

func New(d Deps) *App {
	lgr := d.Logger
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &App{Deps: d, lgr: lgr.Component("app")}
}

// Run starts every component and blocks until ctx is cancelled or the HTTP
// server fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}
	a.lgr.Info("signal engine started",
		logger.Strings("symbols", a.Config.Symbols),
		logger.Bool("stream", a.Collector != nil),
		logger.Bool("kafka", a.Consumer != nil),
		logger.Bool("journal", a.ClickHouse != nil),
		logger.Bool("notifications", a.Notifications != nil),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.lgr.Info("shutdown signal received")
	case err := <-a.HTTP.Errors():
		runErr = fmt.Errorf("http server: %w", err)
	}
	cancel()
	a.shutdown()
	return runErr
}

func (a *App) start(ctx context.Context) error {
	if a.Notifications != nil {
		if err := a.Notifications.Start(); err != nil {
			return fmt.Errorf("notification queue: %w", err)
		}
	}

	// A failed stream is not fatal. Prices then come from REST on demand.
	if a.Collector != nil {
		if err := a.Collector.Start(ctx); err != nil {
			a.lgr.Warn("price stream unavailable, using rest prices", logger.Error(err))
		}
	}

	if a.Consumer != nil && a.Executions != nil {
		a.Consumer.RegisterHandler(a.Executions)
		if err := a.Consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.lgr.Info("execution consumer started", logger.String("topic", a.Executions.Topic()))
	}

	a.Generator.Start(ctx)
	a.Monitor.Start(ctx)

	return a.HTTP.Start()
}

// shutdown stops producers of work before the sinks they write to.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	var errs []error

	if err := a.HTTP.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	a.Generator.Stop()
	a.Monitor.Stop()
	if a.Collector != nil {
		if err := a.Collector.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("collector: %w", err))
		}
	}
	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if a.Notifications != nil {
		if err := a.Notifications.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("notification queue: %w", err))
		}
	}

	// The collector flushes on close, so it goes before the producer.
	a.lgr.RemoveCollector()
	a.Dispatcher.Close()
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		a.lgr.Warn("shutdown finished with errors", logger.Error(err))
	} else {
		a.lgr.Info("shutdown complete")
	}
}

func (a *App) shutdownTimeout() time.Duration {
	if a.Config != nil && a.Config.Server.ShutdownTimeout > 0 {
		return a.Config.Server.ShutdownTimeout
	}
	return 15 * time.Second
}

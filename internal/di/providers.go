package di

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	domsvc "SignalEngine/internal/domain/service"
	"SignalEngine/internal/handler/api"
	mid "SignalEngine/internal/middleware"
	internalrepo "SignalEngine/internal/repository"
	"SignalEngine/internal/service/aiprovider"
	"SignalEngine/internal/service/binance"
	"SignalEngine/internal/service/binancews"
	icache "SignalEngine/internal/service/cache"
	svcmetrics "SignalEngine/internal/service/metrics"
	"SignalEngine/internal/service/notify"
	"SignalEngine/internal/service/ratelimit"
	"SignalEngine/internal/services/consensus"
	"SignalEngine/internal/services/dedup"
	"SignalEngine/internal/services/exits"
	"SignalEngine/internal/services/position"
	"SignalEngine/internal/services/technical"
	"SignalEngine/internal/usecase"
	pkgcache "SignalEngine/pkg/cache"
	pkgch "SignalEngine/pkg/clickhouse"
	"SignalEngine/pkg/config"
	xhttp "SignalEngine/pkg/http"
	pkgkafka "SignalEngine/pkg/kafka"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/metrics"
	"SignalEngine/pkg/queue"
	"SignalEngine/pkg/server"
)

// Optional infrastructure providers return nil when the section is disabled.
// Consumers treat nil as "not configured".

func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	lgr, err := logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lgr, nil
}

func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

func ProvideRedis(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize),
		pkgcache.WithRedisPrefix("signal_engine"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 0),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer also ships aggregated warn/error lines when the log
// collector is enabled.
func ProvideKafkaProducer(cfg *config.Config, lgr *logger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	if c := cfg.Logger.Collector; c.Enabled {
		lgr.AddCollector(&logger.CollectionConfig{
			TimeInterval:   c.Interval,
			CountThreshold: c.CountThreshold,
			Topic:          c.Topic,
			Publisher:      producer,
		})
	}
	return producer, nil
}

func ProvideKafkaConsumer(cfg *config.Config, lgr *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(lgr,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	log := lgr.Component("executions")
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		After: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
			if start, ok := pkgkafka.StartTime(ctx); ok && err == nil {
				log.Debug("execution report handled",
					logger.String("key", string(km.Key)),
					logger.Duration("took", time.Since(start)),
				)
			}
		},
		Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			log.Warn("execution report failed",
				logger.String("topic", topic),
				logger.Int("partition", km.Partition),
				logger.Int64("offset", km.Offset),
				logger.Error(err),
			)
		},
	})
	return consumer, nil
}

// ProvideJournal creates the tables before returning.
func ProvideJournal(ch *pkgch.Client, cfg *config.Config, lgr *logger.Logger) (domrepo.SignalJournal, error) {
	if ch == nil {
		return nil, nil
	}
	j := internalrepo.NewClickHouseJournal(ch, cfg.ClickHouse.Database, lgr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := j.Init(ctx); err != nil {
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return j, nil
}

func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.SignalPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic, cfg.Kafka.EventsTopic)
}

// ProvideSharedCache is Redis when enabled, otherwise a bounded in-process
// cache with the same key layout.
func ProvideSharedCache(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(10000), pkgcache.WithMemoryCleanup(time.Minute))
	}
	return rc
}

func ProvideDedupMirror(shared pkgcache.Service) domrepo.DedupMirror {
	return internalrepo.NewCacheDedupMirror(shared)
}

func ProvideMarketData(cfg *config.Config) domrepo.MarketDataProvider {
	return binance.NewProvider(cfg.Binance.APIKey, cfg.Binance.SecretKey, cfg.Binance.Testnet,
		binance.WithTimeout(cfg.Binance.Timeout))
}

func ProvidePriceCache(cfg *config.Config, market domrepo.MarketDataProvider) *icache.PriceCache {
	return icache.NewPriceCache(cfg.Binance.PriceTTL, market)
}

func ProvidePriceCollector(cfg *config.Config, prices *icache.PriceCache, m domrepo.Metrics, lgr *logger.Logger) *usecase.PriceCollector {
	if !cfg.Binance.StreamEnabled {
		return nil
	}
	stream := binancews.New(cfg.Binance.StreamURL, cfg.Symbols, cfg.Binance.ReconnectDelay, cfg.Binance.PingInterval, lgr)
	pipe := mid.NewTickPipeline(prices, m,
		mid.WithMaxRPS(cfg.Binance.MaxTickRPS),
		mid.WithMaxJump(cfg.Binance.MaxTickJump),
		mid.WithBufferSize(2000),
	)
	return usecase.NewPriceCollector(stream, pipe, m, lgr)
}

// ProvideOpinionProviders builds one client per enabled provider. A provider
// without a URL gets the deterministic mock, which keeps local runs offline.
func ProvideOpinionProviders(cfg *config.Config, rc *pkgcache.RedisCache, lgr *logger.Logger) []domsvc.AIOpinionProvider {
	var cache icache.BytesCache = icache.NewBytes()
	if rc != nil {
		cache = icache.NewRedisCache(rc.Client(), "signal_engine:opinion:")
	}
	var out []domsvc.AIOpinionProvider
	for _, p := range cfg.AI.Providers {
		if !p.Enabled {
			continue
		}
		if p.URL == "" {
			out = append(out, aiprovider.NewMockProvider(p.Name))
			continue
		}
		out = append(out, aiprovider.NewHTTPProvider(p, lgr,
			aiprovider.WithCache(cache, time.Minute),
			aiprovider.WithAttempts(2),
		))
	}
	return out
}

func ProvideOpinionGatherer(cfg *config.Config, providers []domsvc.AIOpinionProvider, m domrepo.Metrics, lgr *logger.Logger) *usecase.OpinionGatherer {
	svcmetrics.Register()
	opts := []usecase.GathererOption{
		usecase.WithRateLimit(ratelimit.New(), cfg.AI.RateLimit, cfg.AI.Burst),
	}
	for _, p := range cfg.AI.Providers {
		if p.Enabled && p.Timeout > 0 {
			opts = append(opts, usecase.WithProviderTimeout(p.Name, p.Timeout))
		}
	}
	return usecase.NewOpinionGatherer(providers, cfg.AI.Timeout, m, lgr, opts...)
}

func ProvideAnalyzer(cfg *config.Config, lgr *logger.Logger) *technical.Analyzer {
	r := cfg.Signal.Regime
	return technical.NewAnalyzer(lgr,
		technical.WithRegimeMinimums(map[models.Regime]float64{
			models.RegimeSideways: r.Sideways,
			models.RegimeBull:     r.Bull,
			models.RegimeBear:     r.Bear,
		}),
		technical.WithDefaultMinimum(r.Default),
	)
}

func ProvideConsensus(cfg *config.Config, lgr *logger.Logger) *consensus.Engine {
	return consensus.NewEngine(lgr, consensus.Weights{
		Sources:   cfg.SourceWeights(),
		Technical: cfg.AI.TechnicalWeight,
	})
}

func ProvideExitCalculator(cfg *config.Config, lgr *logger.Logger) (*exits.Calculator, error) {
	return exits.NewCalculator(lgr, exits.Config{
		Methods:           cfg.Exits.Methods,
		Percents:          config.Triple(cfg.Exits.Percents),
		Allocation:        config.Triple(cfg.Position.Allocation),
		MinConfidence:     cfg.Exits.MinConfidence,
		StaticFallback:    cfg.Exits.StaticFallback,
		FibonacciLookback: cfg.Exits.FibonacciLookback,
	})
}

func ProvideDedupStore(cfg *config.Config, mirror domrepo.DedupMirror, lgr *logger.Logger) (*dedup.Store, error) {
	d := cfg.Signal.Dedup
	loc, err := d.Location()
	if err != nil {
		return nil, fmt.Errorf("dedup timezone: %w", err)
	}
	opts := []dedup.Option{dedup.WithLogger(lgr)}
	if mirror != nil {
		opts = append(opts, dedup.WithMirror(mirror))
	}
	return dedup.NewStore(dedup.Config{
		LockTTL:          d.LockTTL,
		DuplicateWindow:  d.DuplicateWindow,
		DuplicatePercent: d.DuplicatePercent,
		MinGap:           d.MinGap,
		DailyCap:         d.DailyCap,
		HistorySize:      d.HistorySize,
		HistoryRetention: d.HistoryRetention,
		DailyRetention:   d.DailyRetention,
		Location:         loc,
	}, opts...), nil
}

func ProvideMarketLoader(cfg *config.Config, market domrepo.MarketDataProvider, prices *icache.PriceCache, m domrepo.Metrics, lgr *logger.Logger) *usecase.MarketLoader {
	return usecase.NewMarketLoader(market, prices, m, lgr, cfg.Binance.CandleCount, cfg.Binance.Timeout)
}

func ProvideAssembler(
	cfg *config.Config,
	loader *usecase.MarketLoader,
	analyzer *technical.Analyzer,
	gatherer *usecase.OpinionGatherer,
	engine *consensus.Engine,
	calc *exits.Calculator,
	guard *dedup.Store,
	m domrepo.Metrics,
	lgr *logger.Logger,
) *usecase.SignalAssembler {
	s := cfg.Signal
	return usecase.NewSignalAssembler(usecase.AssemblerConfig{
		MinConfidence:         s.MinConfidence,
		ConfidenceBuffer:      s.ConfidenceBuffer,
		TechnicalMinimum:      s.TechnicalMinimum,
		CounterTrendMinimum:   s.CounterTrendMinimum,
		MinRiskReward:         s.MinRiskReward,
		StaticStopLossPercent: s.StaticStopLossPercent,
		MultiTimeframe:        s.MultiTimeframe,
		RejectConflicts:       s.RejectConflicts,
		AccountBalance:        s.Sizing.AccountBalance,
		RiskPerTradePercent:   s.Sizing.RiskPerTradePercent,
		MinNotional:           s.Sizing.MinNotional,
		MaxLoss:               s.Sizing.MaxLoss,
	}, loader, analyzer, gatherer, engine, calc, guard, m, lgr)
}

func ProvideSignalBook(cfg *config.Config) *usecase.SignalBook {
	return usecase.NewSignalBook(cfg.Signal.Validity, cfg.Signal.BookRetention)
}

// ProvideNotificationQueue starts nothing; the app starts and stops it.
func ProvideNotificationQueue(cfg *config.Config, rc *pkgcache.RedisCache, lgr *logger.Logger) (*queue.RedisQueue, error) {
	if !cfg.Notification.Enabled || rc == nil {
		return nil, nil
	}
	bot, err := notify.NewTelegramBot(cfg.Notification.TelegramToken)
	if err != nil {
		return nil, err
	}
	q := queue.NewRedisQueue(lgr, rc.Client(), queue.Config{
		Workers:       cfg.Notification.Workers,
		RetryLimit:    cfg.Notification.RetryLimit,
		RetryDelay:    cfg.Notification.RetryDelay,
		MaxRetryDelay: 5 * time.Minute,
		Prefix:        "signal_engine:" + cfg.Notification.Queue,
	})
	for _, job := range notify.TelegramJobs(bot, cfg.Notification.ChatID) {
		q.RegisterJob(job)
	}
	return q, nil
}

func ProvideNotifier(q *queue.RedisQueue, lgr *logger.Logger) domsvc.NotificationSink {
	if q == nil {
		return notify.NewLogNotifier(lgr)
	}
	return notify.NewQueueNotifier(q, lgr)
}

func ProvidePositionManager(cfg *config.Config, sink domsvc.NotificationSink, lgr *logger.Logger) *position.Manager {
	return position.NewManager(lgr, position.Config{
		TrailingPercent: cfg.Position.TrailingPercent,
		TakerFee:        cfg.Position.TakerFee,
		Allocation:      config.Triple(cfg.Position.Allocation),
		QuantityStep:    cfg.Position.QuantityStep,
	}, position.WithNotifier(sink))
}

func ProvideDispatcher(pub domrepo.SignalPublisher, journal domrepo.SignalJournal, m domrepo.Metrics) *usecase.SignalDispatcher {
	return usecase.NewSignalDispatcher(pub, journal, m)
}

func ProvideSignalGenerator(cfg *config.Config, asm *usecase.SignalAssembler, book *usecase.SignalBook, disp *usecase.SignalDispatcher, guard *dedup.Store, lgr *logger.Logger) *usecase.SignalGenerator {
	return usecase.NewSignalGenerator(asm, book, disp, guard, lgr, cfg.Symbols, cfg.Jobs.Concurrency, cfg.Jobs.GenerateInterval, cfg.Jobs.PruneInterval)
}

func ProvidePositionMonitor(cfg *config.Config, mgr *position.Manager, prices *icache.PriceCache, disp *usecase.SignalDispatcher, m domrepo.Metrics, lgr *logger.Logger) *usecase.PositionMonitor {
	return usecase.NewPositionMonitor(mgr, prices, disp, m, lgr, cfg.Jobs.MonitorInterval, cfg.Binance.Timeout)
}

func ProvideExecutionHandler(cfg *config.Config, book *usecase.SignalBook, mgr *position.Manager, disp *usecase.SignalDispatcher, m domrepo.Metrics, lgr *logger.Logger) *usecase.ExecutionHandler {
	return usecase.NewExecutionHandler(cfg.Kafka.ExecutionsTopic, book, mgr, disp, m, lgr)
}

func ProvideStatusHandler(lgr *logger.Logger, mgr *position.Manager, book *usecase.SignalBook, guard *dedup.Store, journal domrepo.SignalJournal) *api.StatusHandler {
	return api.NewStatusHandler(lgr, mgr, book, guard, journal)
}

func ProvideHTTPServer(cfg *config.Config, lgr *logger.Logger, status *api.StatusHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(lgr, []xhttp.Handler{status},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	)
}

func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	collector *usecase.PriceCollector,
	generator *usecase.SignalGenerator,
	monitor *usecase.PositionMonitor,
	consumer *pkgkafka.Consumer,
	exec *usecase.ExecutionHandler,
	notifications *queue.RedisQueue,
	disp *usecase.SignalDispatcher,
	httpServer *xhttp.Server,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
) *server.App {
	return server.New(server.Deps{
		Config:        cfg,
		Logger:        lgr,
		Collector:     collector,
		Generator:     generator,
		Monitor:       monitor,
		Consumer:      consumer,
		Executions:    exec,
		Notifications: notifications,
		Dispatcher:    disp,
		HTTP:          httpServer,
		ClickHouse:    ch,
		Redis:         rc,
	})
}

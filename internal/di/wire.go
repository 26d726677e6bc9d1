//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalEngine/pkg/config"
	"SignalEngine/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedis,
		ProvideSharedCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideNotificationQueue,

		// Repositories
		ProvideJournal,
		ProvidePublisher,
		ProvideDedupMirror,
		ProvideMarketData,
		ProvidePriceCache,

		// Engine services
		ProvideOpinionProviders,
		ProvideOpinionGatherer,
		ProvideAnalyzer,
		ProvideConsensus,
		ProvideExitCalculator,
		ProvideDedupStore,
		ProvideNotifier,
		ProvidePositionManager,

		// Use cases
		ProvidePriceCollector,
		ProvideMarketLoader,
		ProvideAssembler,
		ProvideSignalBook,
		ProvideDispatcher,
		ProvideSignalGenerator,
		ProvidePositionMonitor,
		ProvideExecutionHandler,

		// HTTP
		ProvideStatusHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}

package repository

import (
	"context"
	"time"

	"SignalEngine/internal/domain/models"
)

type PriceStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SignalPublisher fans accepted signals and position events out to consumers.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, s *models.Signal) error
	PublishSignals(ctx context.Context, signals []*models.Signal) error
	PublishEvent(ctx context.Context, e models.PositionEvent) error
	Close() error
}

// SignalJournal persists signals and closed positions.
type SignalJournal interface {
	Init(ctx context.Context) error
	StoreSignals(ctx context.Context, signals []*models.Signal) error
	StorePosition(ctx context.Context, p *models.Position) error
	QuerySignals(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Signal, error)
	Health(ctx context.Context) error
	Close() error
}

// DedupMirror copies guard registrations to shared storage so other
// instances and operators can see them. It is best effort.
type DedupMirror interface {
	MirrorRegistration(ctx context.Context, s *models.Signal, lockTTL time.Duration, dailyKey string, dailyTTL time.Duration) error
}

type Metrics interface {
	RecordSignal(symbol string, dir models.Direction)
	RecordRejection(stage string)
	RecordConsensus(symbol string, confidence float64)
	RecordPositionEvent(kind string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}

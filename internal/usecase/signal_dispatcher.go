package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
)

// SignalDispatcher routes accepted signals and position changes to the
// configured outputs. Either output may be nil.
type SignalDispatcher struct {
	pub     domrepo.SignalPublisher
	journal domrepo.SignalJournal
	metrics domrepo.Metrics
}

func NewSignalDispatcher(pub domrepo.SignalPublisher, journal domrepo.SignalJournal, metrics domrepo.Metrics) *SignalDispatcher {
	return &SignalDispatcher{pub: pub, journal: journal, metrics: metrics}
}

// DispatchSignals publishes and journals a batch. Both outputs are attempted
// even when one fails.
func (d *SignalDispatcher) DispatchSignals(ctx context.Context, signals []*models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	start := time.Now()
	var errs []error
	if d.pub != nil {
		if err := d.pub.PublishSignals(ctx, signals); err != nil {
			d.metrics.RecordError("publish_signals")
			errs = append(errs, fmt.Errorf("publish signals: %w", err))
		}
	}
	if d.journal != nil {
		if err := d.journal.StoreSignals(ctx, signals); err != nil {
			d.metrics.RecordError("journal_signals")
			errs = append(errs, fmt.Errorf("journal signals: %w", err))
		}
	}
	d.metrics.RecordLatency("dispatch_signals", time.Since(start).Seconds())
	return errors.Join(errs...)
}

// DispatchEvents publishes position events in order.
func (d *SignalDispatcher) DispatchEvents(ctx context.Context, events []models.PositionEvent) error {
	var errs []error
	for _, e := range events {
		d.metrics.RecordPositionEvent(e.Kind)
		if d.pub == nil {
			continue
		}
		if err := d.pub.PublishEvent(ctx, e); err != nil {
			d.metrics.RecordError("publish_event")
			errs = append(errs, fmt.Errorf("publish %s event: %w", e.Kind, err))
		}
	}
	return errors.Join(errs...)
}

// StorePosition journals a closed position.
func (d *SignalDispatcher) StorePosition(ctx context.Context, p models.Position) error {
	if d.journal == nil {
		return nil
	}
	if err := d.journal.StorePosition(ctx, &p); err != nil {
		d.metrics.RecordError("journal_position")
		return fmt.Errorf("journal position: %w", err)
	}
	return nil
}

// Close closes underlying resources if available.
func (d *SignalDispatcher) Close() {
	if d.pub != nil {
		_ = d.pub.Close()
	}
	if d.journal != nil {
		_ = d.journal.Close()
	}
}

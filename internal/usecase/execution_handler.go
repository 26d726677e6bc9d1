package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"SignalEngine/internal/domain/models"
	domrepo "SignalEngine/internal/domain/repository"
	"SignalEngine/internal/services/position"
	pkgkafka "SignalEngine/pkg/kafka"
	"SignalEngine/pkg/logger"
)

// ExecutionHandler consumes fill reports and opens positions for the signals
// they refer to.
type ExecutionHandler struct {
	topic   string
	book    *SignalBook
	mgr     *position.Manager
	disp    *SignalDispatcher
	metrics domrepo.Metrics
	lgr     *logger.Logger
}

func NewExecutionHandler(topic string, book *SignalBook, mgr *position.Manager, disp *SignalDispatcher, metrics domrepo.Metrics, lgr *logger.Logger) *ExecutionHandler {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &ExecutionHandler{topic: topic, book: book, mgr: mgr, disp: disp, metrics: metrics, lgr: lgr.Component("executions")}
}

func (h *ExecutionHandler) Topic() string { return h.topic }

// Handle expects {signal_id, fill_price, quantity}. Reports that can never
// succeed are returned as *pkgkafka.HookError so the consumer skips retries.
func (h *ExecutionHandler) Handle(ctx context.Context, b []byte) error {
	var r models.ExecutionReport
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("execution_unmarshal")
		return &pkgkafka.HookError{Code: "ERR_DECODE", Err: err}
	}
	if r.SignalID == "" {
		return &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: errors.New("signal_id required")}
	}

	sig, err := h.book.MarkExecuted(r.SignalID)
	if err != nil {
		h.metrics.RecordError("execution_signal")
		return &pkgkafka.HookError{Code: "ERR_SIGNAL", Err: err}
	}

	pos, err := h.mgr.Open(&sig, r.FillPrice, r.Quantity)
	if err != nil {
		h.book.Unmark(sig.ID)
	}
	switch {
	case errors.Is(err, position.ErrPositionExists), errors.Is(err, position.ErrInvalidFill):
		h.metrics.RecordError("execution_open")
		return &pkgkafka.HookError{Code: "ERR_POSITION", Err: err}
	case err != nil:
		return err
	}

	ev := models.PositionEvent{
		Symbol:   pos.Symbol,
		SignalID: pos.SignalID,
		Kind:     models.EventOpened,
		Price:    pos.EntryPrice,
		Quantity: pos.OriginalQuantity,
		Status:   pos.Status,
		Time:     pos.OpenedAt,
	}
	if err := h.disp.DispatchEvents(ctx, []models.PositionEvent{ev}); err != nil {
		h.lgr.Warn("dispatch opened event failed", logger.String("symbol", pos.Symbol), logger.Error(err))
	}
	h.metrics.RecordLatency("execution_to_open", time.Since(sig.CreatedAt).Seconds())
	return nil
}

var _ pkgkafka.MessageHandler = (*ExecutionHandler)(nil)

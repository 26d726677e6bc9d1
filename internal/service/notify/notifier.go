package notify

import (
	"context"
	"fmt"
	"time"

	"SignalEngine/internal/domain/models"
	domsvc "SignalEngine/internal/domain/service"
	"SignalEngine/pkg/logger"
	"SignalEngine/pkg/queue"
)

// Message types routed through the notification queue.
const (
	TypeTakeProfit = "position.take_profit"
	TypeStopLoss   = "position.stop_loss"
)

// Alert is the queued payload.
type Alert struct {
	Kind      string                `json:"kind"`
	Symbol    string                `json:"symbol"`
	SignalID  string                `json:"signal_id"`
	Direction models.Direction      `json:"direction"`
	Level     int                   `json:"level,omitempty"`
	Amount    float64               `json:"amount"`
	Price     float64               `json:"price"`
	Remaining float64               `json:"remaining"`
	Status    models.PositionStatus `json:"status"`
	Time      time.Time             `json:"time"`
}

func alertFrom(kind string, p models.Position, level int, amount float64) Alert {
	return Alert{
		Kind:      kind,
		Symbol:    p.Symbol,
		SignalID:  p.SignalID,
		Direction: p.Direction,
		Level:     level,
		Amount:    amount,
		Price:     p.LastPrice,
		Remaining: p.RemainingQuantity,
		Status:    p.Status,
		Time:      time.Now(),
	}
}

// QueueNotifier enqueues alerts; delivery happens in queue workers.
type QueueNotifier struct {
	pub     queue.Publisher
	lgr     *logger.Logger
	timeout time.Duration
}

func NewQueueNotifier(pub queue.Publisher, lgr *logger.Logger) *QueueNotifier {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &QueueNotifier{pub: pub, lgr: lgr.Component("notify"), timeout: 2 * time.Second}
}

func (n *QueueNotifier) OnTakeProfit(ctx context.Context, p models.Position, level int, profit float64) {
	n.enqueue(ctx, TypeTakeProfit, alertFrom(TypeTakeProfit, p, level, profit))
}

func (n *QueueNotifier) OnStopLoss(ctx context.Context, p models.Position, loss float64) {
	n.enqueue(ctx, TypeStopLoss, alertFrom(TypeStopLoss, p, 0, loss))
}

func (n *QueueNotifier) enqueue(ctx context.Context, kind string, a Alert) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.pub.PublishMessage(ctx, kind, a); err != nil {
		n.lgr.Warn("enqueue notification failed",
			logger.String("kind", kind),
			logger.String("symbol", a.Symbol),
			logger.Error(err))
	}
}

// LogNotifier writes alerts to the log. Used when no queue is configured.
type LogNotifier struct{ lgr *logger.Logger }

func NewLogNotifier(lgr *logger.Logger) *LogNotifier {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &LogNotifier{lgr: lgr.Component("notify")}
}

func (n *LogNotifier) OnTakeProfit(_ context.Context, p models.Position, level int, profit float64) {
	n.lgr.Info(FormatAlert(alertFrom(TypeTakeProfit, p, level, profit)))
}

func (n *LogNotifier) OnStopLoss(_ context.Context, p models.Position, loss float64) {
	n.lgr.Info(FormatAlert(alertFrom(TypeStopLoss, p, 0, loss)))
}

// FormatAlert renders a one-message summary.
func FormatAlert(a Alert) string {
	switch a.Kind {
	case TypeTakeProfit:
		return fmt.Sprintf("TP%d hit on %s %s at %.6g: +%.2f, remaining %.6g (%s)",
			a.Level, a.Symbol, a.Direction, a.Price, a.Amount, a.Remaining, a.Status)
	case TypeStopLoss:
		return fmt.Sprintf("Stop loss on %s %s at %.6g: %.2f, position %s",
			a.Symbol, a.Direction, a.Price, a.Amount, a.Status)
	default:
		return fmt.Sprintf("%s on %s", a.Kind, a.Symbol)
	}
}

var (
	_ domsvc.NotificationSink = (*QueueNotifier)(nil)
	_ domsvc.NotificationSink = (*LogNotifier)(nil)
)

package service

import (
	"context"

	"SignalEngine/internal/domain/models"
)

// AIOpinionProvider is one model source.
type AIOpinionProvider interface {
	Name() string
	Analyze(ctx context.Context, in models.AnalysisContext) (models.AIOpinion, error)
}

// NotificationSink receives position milestones. Calls are fire and forget.
type NotificationSink interface {
	OnTakeProfit(ctx context.Context, p models.Position, level int, profit float64)
	OnStopLoss(ctx context.Context, p models.Position, loss float64)
}

package aiprovider

import (
	"context"
	"fmt"

	"SignalEngine/internal/domain/models"
	domsvc "SignalEngine/internal/domain/service"
)

// MockProvider derives an opinion from the technical candidate alone. It
// stands in for sources that have no endpoint configured.
type MockProvider struct {
	name string
}

func NewMockProvider(name string) *MockProvider { return &MockProvider{name: name} }

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Analyze(_ context.Context, in models.AnalysisContext) (models.AIOpinion, error) {
	c := in.Candidate
	op := models.NeutralOpinion(m.name, "mock: no endpoint configured")
	op.Confidence = c.Confidence * 0.9
	switch c.Direction {
	case models.DirectionLong:
		op.Recommendation = models.Buy
		if c.Strength == models.StrengthStrong {
			op.Recommendation = models.StrongBuy
		}
	case models.DirectionShort:
		op.Recommendation = models.Sell
		if c.Strength == models.StrengthStrong {
			op.Recommendation = models.StrongSell
		}
	default:
		op.Confidence = 50
	}
	switch v := in.Indicators.Volatility; {
	case v > 6:
		op.RiskLevel = models.RiskHigh
	case v > 0 && v < 2:
		op.RiskLevel = models.RiskLow
	}
	op.Reasoning = fmt.Sprintf("mock: mirrors technical %s at %.0f%%", c.Direction, c.Confidence)
	return op, nil
}

var _ domsvc.AIOpinionProvider = (*MockProvider)(nil)

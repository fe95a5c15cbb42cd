package trends

import (
	"context"

	"github.com/brettboylen/trend-whisperer/models"
)

// ScoreContributor is a pluggable strategy that refines a trend's metrics or
// examples before it is scored. A contributor that returns an error must leave
// the trend as it found it.
type ScoreContributor interface {
	Name() string
	Contribute(ctx context.Context, trend *models.Trend) error
}

// ConstantContributor pins the extension-point metrics to fixed values
type ConstantContributor struct {
	Pattern      float64
	Uniqueness   float64
	Monetization float64
}

// NewConstantContributor returns a contributor pinning the metrics to defaults
func NewConstantContributor(defaults MetricDefaults) ConstantContributor {
	return ConstantContributor{
		Pattern:      defaults.Pattern,
		Uniqueness:   defaults.Uniqueness,
		Monetization: defaults.Monetization,
	}
}

func (c ConstantContributor) Name() string { return "constant" }

func (c ConstantContributor) Contribute(_ context.Context, trend *models.Trend) error {
	trend.Metrics.PatternScore = c.Pattern
	trend.Metrics.UniquenessScore = c.Uniqueness
	trend.Metrics.MonetizationPotential = c.Monetization
	return nil
}

package usecase

import "context"

// MetricsSummary represents aggregated styling-run insights.
type MetricsSummary struct {
	TotalRuns             int64   `json:"total_runs"`
	SuccessfulRuns        int64   `json:"successful_runs"`
	SuccessRate           float64 `json:"success_rate"`
	AverageStylesRendered float64 `json:"average_styles_rendered"`
	AverageLatencyMs      float64 `json:"average_latency_ms"`
}

// GetMetricsSummary aggregates run metrics from persisted logs.
func (uc *StylingUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRuns:             aggregation.TotalCount,
		SuccessfulRuns:        aggregation.SuccessCount,
		AverageStylesRendered: aggregation.AverageRendered,
		AverageLatencyMs:      aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}

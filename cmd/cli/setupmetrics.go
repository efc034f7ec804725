package cli

import (
	"context"

	"github.com/cdcgov/data-exchange-upload/archive-server/internal/appconfig"
	"github.com/cdcgov/data-exchange-upload/archive-server/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
) // .import

func setupMetrics(ctx context.Context, appConfig appconfig.AppConfig, m ...prometheus.Collector) {
	if err := metrics.RegisterMetrics(metrics.DefaultMetrics...); err != nil {
		logger.Warn("failed to register metrics", "error", err)
	}
	if len(m) > 0 {
		if err := metrics.RegisterMetrics(m...); err != nil {
			logger.Warn("failed to register metrics", "error", err)
		}
	}
	metrics.DefaultPoller.Start(ctx, appConfig.MetricsPollInterval)
} // setupMetrics

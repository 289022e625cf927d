package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/licensegate/internal/domain"
	"github.com/yourorg/licensegate/internal/observability/metrics"
)

// LicenseMetricsWorker periodically refreshes the per-status license gauges
// from the ledger so dashboards track the real row counts, not just the
// deltas this process happened to observe.
type LicenseMetricsWorker struct {
	licenseRepo domain.LicenseRepository
	logger      *slog.Logger
	interval    time.Duration
}

// NewLicenseMetricsWorker creates a new metrics worker
func NewLicenseMetricsWorker(licenseRepo domain.LicenseRepository, logger *slog.Logger, interval time.Duration) *LicenseMetricsWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &LicenseMetricsWorker{
		licenseRepo: licenseRepo,
		logger:      logger,
		interval:    interval,
	}
}

// Start begins the refresh loop and blocks until ctx is cancelled
func (w *LicenseMetricsWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("license metrics worker started", slog.Duration("interval", w.interval))
	w.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("license metrics worker stopped")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *LicenseMetricsWorker) refresh(ctx context.Context) {
	counts, err := w.licenseRepo.CountByStatus(ctx)
	if err != nil {
		w.logger.Error("failed to count licenses", slog.String("error", err.Error()))
		return
	}

	for _, status := range []domain.LicenseStatus{domain.StatusActive, domain.StatusRevoked} {
		metrics.SetLicenseCount(string(status), counts[status])
	}
}

package deposit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler periodically re-verifies deposits whose verification never
// arrived. A pending deposit is never assumed paid.
type Reconciler struct {
	svc      *Service
	interval time.Duration
	minAge   time.Duration
	batch    int
}

func NewReconciler(svc *Service, interval, minAge time.Duration, batch int) *Reconciler {
	if batch <= 0 {
		batch = 50
	}
	return &Reconciler{svc: svc, interval: interval, minAge: minAge, batch: batch}
}

// Run blocks until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := r.svc.ReconcilePending(ctx, r.minAge, r.batch)
			if err != nil {
				zap.L().Error("deposit reconciliation failed", zap.Error(err))
				continue
			}
			if report.Checked > 0 {
				zap.L().Info("deposit reconciliation",
					zap.Int("checked", report.Checked),
					zap.Int("completed", report.Completed),
					zap.Int("failed", report.Failed),
					zap.Int("still_pending", report.StillPending),
					zap.Int("errors", report.Errors))
			}
		}
	}
}

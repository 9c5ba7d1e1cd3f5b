package cron

import (
	"context"
	"fmt"

	"github.com/dmcastano/evdex-backend/internal/contributions"
	"github.com/dmcastano/evdex-backend/pkg/logger"
	"github.com/dmcastano/evdex-backend/pkg/metrics"
)

const orphanReconcileJobName = "orphan-reconcile"

// OrphanReconcileJobParams configure the orphan reconciliation job.
type OrphanReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler orphanReconciler
	Metrics    *metrics.JobMetrics
}

type orphanReconciler interface {
	ReconcileOrphans(ctx context.Context) (*contributions.ReconcileReport, error)
}

// NewOrphanReconcileJob builds the job that sweeps update proposals whose
// target vehicle disappeared and cancels orphaned image proposals.
func NewOrphanReconcileJob(params OrphanReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &orphanReconcileJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
		metrics:    params.Metrics,
	}, nil
}

type orphanReconcileJob struct {
	logg       *logger.Logger
	reconciler orphanReconciler
	metrics    *metrics.JobMetrics
}

func (j *orphanReconcileJob) Name() string { return orphanReconcileJobName }

func (j *orphanReconcileJob) Run(ctx context.Context) error {
	report, err := j.reconciler.ReconcileOrphans(ctx)
	if report != nil {
		j.metrics.AddRemoved(orphanReconcileJobName, report.Removed)
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"removed":                  report.Removed,
			"cancelled_image_proposal": report.CancelledImageProposal,
		})
		j.logg.Info(logCtx, "orphan reconciliation pass complete")
	}
	if err != nil {
		return fmt.Errorf("orphan reconcile: %w", err)
	}
	return nil
}

package contributions

import (
	"context"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
)

// ImageOrphanCanceller cancels image proposals whose vehicle disappeared.
// Wired to the images service; optional so the engine also runs standalone.
type ImageOrphanCanceller interface {
	CancelOrphaned(ctx context.Context) (int, error)
}

// ReconcileOrphans removes UPDATE contributions whose target vehicle was
// deleted out-of-band, votes first, then the contribution row. Each orphan is
// handled independently so one failure does not abort the pass; failures are
// aggregated and the successfully removed orphans are still reported. Running
// the pass with no orphans is a no-op.
func (s *service) ReconcileOrphans(ctx context.Context) (*ReconcileReport, error) {
	orphans, err := s.repo.FindOrphans(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "scan for orphans")
	}

	report := &ReconcileReport{Orphans: []OrphanRecord{}}
	var failures error

	for _, orphan := range orphans {
		err := s.removeOrphan(ctx, orphan)
		if err != nil {
			failures = multierr.Append(failures, err)
			logCtx := s.logg.WithContributionID(ctx, orphan.ContributionID.String())
			s.logg.Error(logCtx, "failed to remove orphan contribution", err)
			continue
		}
		report.Removed++
		report.Orphans = append(report.Orphans, orphan)
	}

	if s.imageOrphans != nil {
		cancelled, err := s.imageOrphans.CancelOrphaned(ctx)
		if err != nil {
			failures = multierr.Append(failures, err)
			s.logg.Error(ctx, "failed to cancel orphaned image contributions", err)
		}
		report.CancelledImageProposal = cancelled
	}

	if report.Removed > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{"removed": report.Removed})
		s.logg.Info(logCtx, "orphan contributions removed")
	}
	if failures != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeInternal, failures, "orphan reconciliation completed with failures")
	}
	return report, nil
}

func (s *service) removeOrphan(ctx context.Context, orphan OrphanRecord) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.reviews.WithTx(tx).DeleteByContribution(ctx, orphan.ContributionID); err != nil {
			return err
		}
		return s.repo.WithTx(tx).Delete(ctx, orphan.ContributionID)
	})
}

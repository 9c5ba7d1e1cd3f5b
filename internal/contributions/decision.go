package contributions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/internal/ledger"
	"github.com/dmcastano/evdex-backend/internal/policy"
	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
	"github.com/dmcastano/evdex-backend/pkg/outbox"
)

// Approve executes a moderator approval as one transaction: claim the pending
// status with a compare-and-swap, apply the candidate record to the catalog,
// credit the submitter, and queue the domain event. A racing second approval
// loses the CAS and observes PreconditionFailed; any later failure rolls the
// whole unit back, leaving the contribution pending.
func (s *service) Approve(ctx context.Context, actor policy.Actor, id uuid.UUID) (*ContributionDTO, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cat := s.catalog.WithTx(tx)

		contribution, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "contribution not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load contribution")
		}
		if err := policy.CanDecide(actor, contribution.Status); err != nil {
			return err
		}

		claimed, err := repo.MarkApproved(ctx, id, time.Now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark approved")
		}
		if !claimed {
			return pkgerrors.New(pkgerrors.CodePrecondition, "contribution has already been decided")
		}

		vehicleID, err := s.applyToCatalog(ctx, cat, contribution)
		if err != nil {
			return err
		}

		contributionID := contribution.ID
		credit := ledger.RecordCreditEventInput{
			UserID:         contribution.UserID,
			ContributionID: &contributionID,
			Type:           enums.CreditEventContributionApproved,
			Amount:         s.settings.ApprovalCredit,
		}
		if _, err := s.ledger.RecordEventTx(ctx, tx, credit); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit submitter")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventContributionApproved,
			AggregateType: enums.OutboxAggregateContribution,
			AggregateID:   contributionID,
			Actor:         actorRef(actor),
			Data: map[string]any{
				"contribution_id": contributionID.String(),
				"user_id":         contribution.UserID.String(),
				"vehicle_id":      vehicleID.String(),
				"change_type":     contribution.ChangeType.String(),
			},
		}); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, appErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "approve contribution")
	}

	logCtx := s.logg.WithContributionID(ctx, id.String())
	s.logg.Info(logCtx, "contribution approved")
	return s.Get(ctx, id)
}

// Reject validates the moderator's comment and flips the contribution to
// rejected. No catalog or credit side effects.
func (s *service) Reject(ctx context.Context, actor policy.Actor, id uuid.UUID, input RejectInput) (*ContributionDTO, error) {
	comment := strings.TrimSpace(input.Comment)
	if len(comment) < s.settings.RejectionCommentMinLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection comment is too short").
			WithDetails(map[string]any{"min_length": s.settings.RejectionCommentMinLen})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		contribution, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "contribution not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load contribution")
		}
		if err := policy.CanDecide(actor, contribution.Status); err != nil {
			return err
		}

		rejected, err := repo.MarkRejected(ctx, id, comment, time.Now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark rejected")
		}
		if !rejected {
			return pkgerrors.New(pkgerrors.CodePrecondition, "contribution has already been decided")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventContributionRejected,
			AggregateType: enums.OutboxAggregateContribution,
			AggregateID:   id,
			Actor:         actorRef(actor),
			Data: map[string]any{
				"contribution_id": id.String(),
				"user_id":         contribution.UserID.String(),
				"comment":         comment,
			},
		})
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, appErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reject contribution")
	}

	logCtx := s.logg.WithContributionID(ctx, id.String())
	s.logg.Info(logCtx, "contribution rejected")
	return s.Get(ctx, id)
}

// applyToCatalog writes the candidate record into the catalog and returns the
// affected vehicle id. Updates replace the target's full descriptive field
// set; new proposals insert a fresh row.
func (s *service) applyToCatalog(ctx context.Context, cat catalogWriter, contribution *models.Contribution) (uuid.UUID, error) {
	switch contribution.ChangeType {
	case enums.ChangeTypeUpdate:
		if contribution.TargetVehicleID == nil {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "update contribution has no target vehicle")
		}
		vehicle, err := cat.FindByID(ctx, *contribution.TargetVehicleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Left for the orphan reconciler; the rollback keeps the
				// contribution pending.
				return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "target vehicle no longer exists")
			}
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load target vehicle")
		}
		if err := applyCandidate(contribution.VehicleData, vehicle); err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode candidate record")
		}
		if _, err := cat.Update(ctx, vehicle); err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace target vehicle")
		}
		return vehicle.ID, nil

	case enums.ChangeTypeNew:
		vehicle, err := buildVehicle(contribution.VehicleData)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode candidate record")
		}
		if _, err := cat.Create(ctx, vehicle); err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert vehicle")
		}
		return vehicle.ID, nil
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown change type")
}

// catalogWriter is the slice of the catalog repository the applier touches.
type catalogWriter interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	Create(ctx context.Context, vehicle *models.Vehicle) (*models.Vehicle, error)
	Update(ctx context.Context, vehicle *models.Vehicle) (*models.Vehicle, error)
}

func buildVehicle(data json.RawMessage) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	if err := json.Unmarshal(data, &vehicle); err != nil {
		return nil, err
	}
	vehicle.ID = uuid.New()
	vehicle.Images = nil
	return &vehicle, nil
}


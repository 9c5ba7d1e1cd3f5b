package contributions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/internal/catalog"
	"github.com/dmcastano/evdex-backend/internal/ledger"
	"github.com/dmcastano/evdex-backend/internal/policy"
	dbpkg "github.com/dmcastano/evdex-backend/pkg/db"
	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
	"github.com/dmcastano/evdex-backend/pkg/logger"
	"github.com/dmcastano/evdex-backend/pkg/outbox"
	"github.com/dmcastano/evdex-backend/pkg/pagination"
)

const reviewUniqueConstraint = "idx_contribution_reviews_contribution_user"

// Service is the contribution moderation engine: the proposal state machine,
// vote tally, approval applier, duplicate detector, orphan reconciler, and
// related-proposal clusterer behind one surface.
type Service interface {
	Submit(ctx context.Context, actor policy.Actor, input SubmitContributionInput) (*ContributionDTO, error)
	Edit(ctx context.Context, actor policy.Actor, id uuid.UUID, input EditContributionInput) (*ContributionDTO, error)
	Cancel(ctx context.Context, actor policy.Actor, id uuid.UUID) (*ContributionDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ContributionDTO, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*ListResult, error)
	ListPending(ctx context.Context, params pagination.Params) (*ListResult, error)
	Vote(ctx context.Context, actor policy.Actor, id uuid.UUID) (*ContributionDTO, error)
	Approve(ctx context.Context, actor policy.Actor, id uuid.UUID) (*ContributionDTO, error)
	Reject(ctx context.Context, actor policy.Actor, id uuid.UUID, input RejectInput) (*ContributionDTO, error)
	Related(ctx context.Context, id uuid.UUID) ([]ContributionDTO, error)
	ReconcileOrphans(ctx context.Context) (*ReconcileReport, error)
}

// TxRunner executes a function inside one store transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Settings carries the moderation tunables from configuration.
type Settings struct {
	RejectionCommentMinLen int
	ApprovalCredit         int
	ClusterYearWindow      int
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo      *Repository
	Reviews   *ReviewRepository
	Catalog   *catalog.Repository
	Duplicate *DuplicateChecker
	Ledger    ledger.Service
	Outbox    outbox.Service
	Tx        TxRunner
	Logger    *logger.Logger
	Settings  Settings

	// ImageOrphans is optional; when set, orphan reconciliation also cancels
	// image proposals whose vehicle is gone.
	ImageOrphans ImageOrphanCanceller
}

type service struct {
	repo         *Repository
	reviews      *ReviewRepository
	catalog      *catalog.Repository
	duplicate    *DuplicateChecker
	ledger       ledger.Service
	outbox       outbox.Service
	tx           TxRunner
	logg         *logger.Logger
	settings     Settings
	imageOrphans ImageOrphanCanceller
}

// NewService validates dependencies and returns the moderation engine.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, errors.New("contribution repository is required")
	case params.Reviews == nil:
		return nil, errors.New("review repository is required")
	case params.Catalog == nil:
		return nil, errors.New("catalog repository is required")
	case params.Duplicate == nil:
		return nil, errors.New("duplicate checker is required")
	case params.Ledger == nil:
		return nil, errors.New("ledger service is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox service is required")
	case params.Tx == nil:
		return nil, errors.New("transaction runner is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	settings := params.Settings
	if settings.RejectionCommentMinLen <= 0 {
		settings.RejectionCommentMinLen = 10
	}
	if settings.ApprovalCredit <= 0 {
		settings.ApprovalCredit = 10
	}
	if settings.ClusterYearWindow <= 0 {
		settings.ClusterYearWindow = 2
	}
	return &service{
		repo:         params.Repo,
		reviews:      params.Reviews,
		catalog:      params.Catalog,
		duplicate:    params.Duplicate,
		ledger:       params.Ledger,
		outbox:       params.Outbox,
		tx:           params.Tx,
		logg:         params.Logger,
		settings:     settings,
		imageOrphans: params.ImageOrphans,
	}, nil
}

func (s *service) Submit(ctx context.Context, actor policy.Actor, input SubmitContributionInput) (*ContributionDTO, error) {
	if !input.ChangeType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "change type must be new or update")
	}
	candidate, err := parseCandidate(input.VehicleData)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	switch input.ChangeType {
	case enums.ChangeTypeUpdate:
		if input.TargetVehicleID == nil || *input.TargetVehicleID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "target vehicle id is required for updates")
		}
		if err := s.requireVehicle(ctx, *input.TargetVehicleID); err != nil {
			return nil, err
		}
	case enums.ChangeTypeNew:
		if input.TargetVehicleID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "target vehicle id is not allowed for new proposals")
		}
		verdict := s.duplicate.Check(ctx, candidate)
		if verdict.IsDuplicate {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a matching vehicle already exists").
				WithDetails(duplicateDetails(verdict))
		}
		if len(verdict.Suggestions) > 0 {
			logCtx := s.logg.WithFields(ctx, map[string]any{"suggestions": verdict.Suggestions})
			s.logg.Info(logCtx, "near-duplicate suggestions found for new proposal")
		}
	}

	contribution := &models.Contribution{
		ID:              uuid.New(),
		UserID:          actor.UserID,
		ChangeType:      input.ChangeType,
		TargetVehicleID: input.TargetVehicleID,
		VehicleData:     input.VehicleData,
		Status:          enums.ContributionStatusPending,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).Create(ctx, contribution); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventContributionSubmitted,
			AggregateType: enums.OutboxAggregateContribution,
			AggregateID:   contribution.ID,
			Actor:         actorRef(actor),
			Data:          submissionEventData(contribution),
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist contribution")
	}

	logCtx := s.logg.WithContributionID(ctx, contribution.ID.String())
	s.logg.Info(logCtx, "contribution submitted")
	return &ContributionDTO{Contribution: *contribution}, nil
}

func (s *service) Edit(ctx context.Context, actor policy.Actor, id uuid.UUID, input EditContributionInput) (*ContributionDTO, error) {
	contribution, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanEdit(actor, contribution.UserID, contribution.Status); err != nil {
		return nil, err
	}
	if _, err := parseCandidate(input.VehicleData); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	targetVehicleID := contribution.TargetVehicleID
	if input.TargetVehicleID != nil {
		targetVehicleID = input.TargetVehicleID
	}
	if contribution.ChangeType == enums.ChangeTypeUpdate {
		if targetVehicleID == nil || *targetVehicleID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "target vehicle id is required for updates")
		}
		if err := s.requireVehicle(ctx, *targetVehicleID); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.UpdatePendingPayload(ctx, id, targetVehicleID, input.VehicleData)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update contribution")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "contribution is no longer pending")
	}
	return s.Get(ctx, id)
}

func (s *service) Cancel(ctx context.Context, actor policy.Actor, id uuid.UUID) (*ContributionDTO, error) {
	contribution, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanCancel(actor, contribution.UserID, contribution.Status); err != nil {
		return nil, err
	}

	cancelled, err := s.repo.MarkCancelled(ctx, id, time.Now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel contribution")
	}
	if !cancelled {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "contribution is no longer pending")
	}

	logCtx := s.logg.WithContributionID(ctx, id.String())
	s.logg.Info(logCtx, "contribution cancelled")
	return s.Get(ctx, id)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ContributionDTO, error) {
	contribution, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.reviews.CountByContribution(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count votes")
	}
	return &ContributionDTO{Contribution: *contribution, VoteCount: count}, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*ListResult, error) {
	result, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list contributions")
	}
	return result, nil
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*ListResult, error) {
	pending := enums.ContributionStatusPending
	return s.List(ctx, params, ListFilters{Status: &pending})
}

func (s *service) Vote(ctx context.Context, actor policy.Actor, id uuid.UUID) (*ContributionDTO, error) {
	contribution, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanVote(actor, contribution.UserID, contribution.Status); err != nil {
		return nil, err
	}

	review := &models.ContributionReview{
		ID:             uuid.New(),
		ContributionID: id,
		UserID:         actor.UserID,
		Vote:           1,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		if dbpkg.IsUniqueViolation(err, reviewUniqueConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "you have already voted on this contribution")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record vote")
	}
	return s.Get(ctx, id)
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Contribution, error) {
	contribution, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contribution not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load contribution")
	}
	return contribution, nil
}

func (s *service) requireVehicle(ctx context.Context, id uuid.UUID) error {
	exists, err := s.catalog.Exists(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve target vehicle")
	}
	if !exists {
		return pkgerrors.New(pkgerrors.CodeNotFound, "target vehicle not found")
	}
	return nil
}

func actorRef(actor policy.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()}
}

func duplicateDetails(verdict DuplicateVerdict) map[string]any {
	details := map[string]any{"message": verdict.Message}
	if verdict.ExistingVehicle != nil {
		details["existing_vehicle"] = verdict.ExistingVehicle
	}
	if len(verdict.Suggestions) > 0 {
		details["suggestions"] = verdict.Suggestions
	}
	return details
}

func submissionEventData(contribution *models.Contribution) map[string]any {
	data := map[string]any{
		"contribution_id": contribution.ID.String(),
		"user_id":         contribution.UserID.String(),
		"change_type":     contribution.ChangeType.String(),
	}
	if contribution.TargetVehicleID != nil {
		data["target_vehicle_id"] = contribution.TargetVehicleID.String()
	}
	return data
}

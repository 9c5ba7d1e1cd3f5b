package images

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/internal/catalog"
	"github.com/dmcastano/evdex-backend/internal/policy"
	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
	"github.com/dmcastano/evdex-backend/pkg/logger"
	"github.com/dmcastano/evdex-backend/pkg/outbox"
	"github.com/dmcastano/evdex-backend/pkg/pagination"
)

// Service runs the image proposal lifecycle: the same state machine contract
// as vehicle contributions, with file promotion instead of catalog mutation.
// Image approval issues no credit.
type Service interface {
	Submit(ctx context.Context, actor policy.Actor, input SubmitImageInput) (*models.ImageContribution, error)
	Edit(ctx context.Context, actor policy.Actor, id uuid.UUID, input EditImageInput) (*models.ImageContribution, error)
	Cancel(ctx context.Context, actor policy.Actor, id uuid.UUID) (*models.ImageContribution, error)
	Approve(ctx context.Context, actor policy.Actor, id uuid.UUID) (*models.ImageContribution, error)
	Reject(ctx context.Context, actor policy.Actor, id uuid.UUID, input RejectInput) (*models.ImageContribution, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ImageContribution, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*ListResult, error)
	CancelOrphaned(ctx context.Context) (int, error)
}

// TxRunner executes a function inside one store transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// proposalChecker resolves the optional linked vehicle contribution.
type proposalChecker interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Contribution, error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo                   *Repository
	Catalog                *catalog.Repository
	Proposals              proposalChecker
	Stager                 Stager
	Outbox                 outbox.Service
	Tx                     TxRunner
	Logger                 *logger.Logger
	RejectionCommentMinLen int
}

type service struct {
	repo             *Repository
	catalog          *catalog.Repository
	proposals        proposalChecker
	stager           Stager
	outbox           outbox.Service
	tx               TxRunner
	logg             *logger.Logger
	rejectCommentMin int
}

// NewService validates dependencies and returns the image proposal service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, errors.New("image repository is required")
	case params.Catalog == nil:
		return nil, errors.New("catalog repository is required")
	case params.Proposals == nil:
		return nil, errors.New("proposal checker is required")
	case params.Stager == nil:
		return nil, errors.New("stager is required")
	case params.Outbox == nil:
		return nil, errors.New("outbox service is required")
	case params.Tx == nil:
		return nil, errors.New("transaction runner is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	minLen := params.RejectionCommentMinLen
	if minLen <= 0 {
		minLen = 10
	}
	return &service{
		repo:             params.Repo,
		catalog:          params.Catalog,
		proposals:        params.Proposals,
		stager:           params.Stager,
		outbox:           params.Outbox,
		tx:               params.Tx,
		logg:             params.Logger,
		rejectCommentMin: minLen,
	}, nil
}

func (s *service) Submit(ctx context.Context, actor policy.Actor, input SubmitImageInput) (*models.ImageContribution, error) {
	if strings.TrimSpace(input.StagedPath) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "staged path is required")
	}
	if input.VehicleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle id is required")
	}

	exists, err := s.catalog.Exists(ctx, input.VehicleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve vehicle")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vehicle not found")
	}

	if input.ContributionID != nil {
		proposal, err := s.proposals.FindByID(ctx, *input.ContributionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "linked contribution not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve linked contribution")
		}
		if proposal.Status != enums.ContributionStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodePrecondition, "linked contribution is no longer pending")
		}
	}

	contribution := &models.ImageContribution{
		ID:             uuid.New(),
		UserID:         actor.UserID,
		VehicleID:      input.VehicleID,
		ContributionID: input.ContributionID,
		StagedPath:     strings.TrimSpace(input.StagedPath),
		Status:         enums.ContributionStatusPending,
	}
	if _, err := s.repo.Create(ctx, contribution); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist image contribution")
	}
	return contribution, nil
}

// Edit swaps the staged file on a pending proposal. The replaced staged
// object is discarded best-effort after the swap lands.
func (s *service) Edit(ctx context.Context, actor policy.Actor, id uuid.UUID, input EditImageInput) (*models.ImageContribution, error) {
	stagedPath := strings.TrimSpace(input.StagedPath)
	if stagedPath == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "staged path is required")
	}

	contribution, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanEdit(actor, contribution.UserID, contribution.Status); err != nil {
		return nil, err
	}

	replaced, err := s.repo.ReplaceStagedPath(ctx, id, stagedPath, time.Now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace staged path")
	}
	if !replaced {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "image contribution is no longer pending")
	}

	if contribution.StagedPath != stagedPath {
		s.discardStaged(ctx, contribution.StagedPath)
	}
	return s.load(ctx, id)
}

func (s *service) Cancel(ctx context.Context, actor policy.Actor, id uuid.UUID) (*models.ImageContribution, error) {
	contribution, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanCancel(actor, contribution.UserID, contribution.Status); err != nil {
		return nil, err
	}

	cancelled, err := s.repo.MarkCancelled(ctx, id, time.Now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel image contribution")
	}
	if !cancelled {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "image contribution is no longer pending")
	}

	s.discardStaged(ctx, contribution.StagedPath)
	return s.load(ctx, id)
}

// Approve promotes the staged file and records the durable image in one
// transaction with the status flip.
func (s *service) Approve(ctx context.Context, actor policy.Actor, id uuid.UUID) (*models.ImageContribution, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		contribution, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "image contribution not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load image contribution")
		}
		if err := policy.CanDecide(actor, contribution.Status); err != nil {
			return err
		}

		exists, err := s.catalog.WithTx(tx).Exists(ctx, contribution.VehicleID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve vehicle")
		}
		if !exists {
			return pkgerrors.New(pkgerrors.CodeNotFound, "vehicle no longer exists")
		}

		claimed, err := repo.MarkApproved(ctx, id, time.Now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark approved")
		}
		if !claimed {
			return pkgerrors.New(pkgerrors.CodePrecondition, "image contribution has already been decided")
		}

		durableRef, err := s.stager.Promote(ctx, contribution.StagedPath)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote staged image")
		}

		displayOrder, err := repo.NextDisplayOrder(ctx, contribution.VehicleID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute display order")
		}
		image := &models.VehicleImage{
			ID:                  uuid.New(),
			VehicleID:           contribution.VehicleID,
			ImageContributionID: contribution.ID,
			DurableRef:          durableRef,
			DisplayOrder:        displayOrder,
		}
		if err := repo.CreateVehicleImage(ctx, image); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist vehicle image")
		}
		if err := s.catalog.WithTx(tx).TouchUpdatedAt(ctx, contribution.VehicleID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "touch vehicle")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventImageApproved,
			AggregateType: enums.OutboxAggregateImageContribution,
			AggregateID:   contribution.ID,
			Actor:         actorRef(actor),
			Data: map[string]any{
				"image_contribution_id": contribution.ID.String(),
				"user_id":               contribution.UserID.String(),
				"vehicle_id":            contribution.VehicleID.String(),
				"durable_ref":           durableRef,
			},
		})
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, appErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "approve image contribution")
	}

	logCtx := s.logg.WithContributionID(ctx, id.String())
	s.logg.Info(logCtx, "image contribution approved")
	return s.load(ctx, id)
}

func (s *service) Reject(ctx context.Context, actor policy.Actor, id uuid.UUID, input RejectInput) (*models.ImageContribution, error) {
	comment := strings.TrimSpace(input.Comment)
	if len(comment) < s.rejectCommentMin {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection comment is too short").
			WithDetails(map[string]any{"min_length": s.rejectCommentMin})
	}

	var stagedPath string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		contribution, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "image contribution not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load image contribution")
		}
		if err := policy.CanDecide(actor, contribution.Status); err != nil {
			return err
		}

		rejected, err := repo.MarkRejected(ctx, id, comment, time.Now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark rejected")
		}
		if !rejected {
			return pkgerrors.New(pkgerrors.CodePrecondition, "image contribution has already been decided")
		}
		stagedPath = contribution.StagedPath

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventImageRejected,
			AggregateType: enums.OutboxAggregateImageContribution,
			AggregateID:   contribution.ID,
			Actor:         actorRef(actor),
			Data: map[string]any{
				"image_contribution_id": contribution.ID.String(),
				"user_id":               contribution.UserID.String(),
				"comment":               comment,
			},
		})
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, appErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reject image contribution")
	}

	s.discardStaged(ctx, stagedPath)
	return s.load(ctx, id)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ImageContribution, error) {
	return s.load(ctx, id)
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*ListResult, error) {
	result, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list image contributions")
	}
	return result, nil
}

// CancelOrphaned cancels pending image proposals whose vehicle was deleted
// out-of-band and discards their staged files. Idempotent.
func (s *service) CancelOrphaned(ctx context.Context) (int, error) {
	orphans, err := s.repo.FindOrphanedPending(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "scan for orphaned image contributions")
	}

	cancelled := 0
	for _, orphan := range orphans {
		done, err := s.repo.MarkCancelled(ctx, orphan.ID, time.Now())
		if err != nil {
			return cancelled, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel orphaned image contribution")
		}
		if !done {
			continue
		}
		s.discardStaged(ctx, orphan.StagedPath)
		cancelled++
	}
	return cancelled, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.ImageContribution, error) {
	contribution, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "image contribution not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load image contribution")
	}
	return contribution, nil
}

// discardStaged is best-effort: the proposal's terminal state is already
// committed and an undeleted staged object is only storage garbage.
func (s *service) discardStaged(ctx context.Context, stagedPath string) {
	if err := s.stager.Discard(ctx, stagedPath); err != nil {
		s.logg.Error(ctx, "failed to discard staged image", err)
	}
}

func actorRef(actor policy.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()}
}

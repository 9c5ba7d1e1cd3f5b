package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
)

// Service defines operations that record and read credit events. Events are
// immutable; a balance is always derived by summing them.
type Service interface {
	RecordEvent(ctx context.Context, input RecordCreditEventInput) (*models.CreditEvent, error)
	RecordEventTx(ctx context.Context, tx *gorm.DB, input RecordCreditEventInput) (*models.CreditEvent, error)
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	History(ctx context.Context, userID uuid.UUID) ([]models.CreditEvent, error)
	HasEventForContribution(ctx context.Context, contributionID uuid.UUID, eventType enums.CreditEventType) (bool, error)
}

type service struct {
	repo Repository
}

// RecordCreditEventInput captures the immutable data a credit event requires.
type RecordCreditEventInput struct {
	UserID         uuid.UUID
	ContributionID *uuid.UUID
	Type           enums.CreditEventType
	Amount         int
}

// NewService wires a credit ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("credit event repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordEvent(ctx context.Context, input RecordCreditEventInput) (*models.CreditEvent, error) {
	return s.record(ctx, s.repo, input)
}

// RecordEventTx records the event inside the caller's transaction. The
// approval path uses this so the credit commits with the status change.
func (s *service) RecordEventTx(ctx context.Context, tx *gorm.DB, input RecordCreditEventInput) (*models.CreditEvent, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	return s.record(ctx, s.repo.WithTx(tx), input)
}

func (s *service) record(ctx context.Context, repo Repository, input RecordCreditEventInput) (*models.CreditEvent, error) {
	if input.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid credit event type %q", input.Type)
	}
	if input.Type == enums.CreditEventContributionApproved && input.ContributionID == nil {
		return nil, fmt.Errorf("contribution id is required for approval credits")
	}
	if input.Amount == 0 {
		return nil, fmt.Errorf("amount must be non-zero")
	}

	event := &models.CreditEvent{
		UserID:         input.UserID,
		ContributionID: input.ContributionID,
		Type:           input.Type,
		Amount:         input.Amount,
	}
	if err := repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, fmt.Errorf("user id is required")
	}
	return s.repo.SumByUserID(ctx, userID)
}

func (s *service) History(ctx context.Context, userID uuid.UUID) ([]models.CreditEvent, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	return s.repo.ListByUserID(ctx, userID)
}

func (s *service) HasEventForContribution(ctx context.Context, contributionID uuid.UUID, eventType enums.CreditEventType) (bool, error) {
	if contributionID == uuid.Nil {
		return false, fmt.Errorf("contribution id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid credit event type %q", eventType)
	}
	return s.repo.HasEventForContribution(ctx, contributionID, eventType)
}

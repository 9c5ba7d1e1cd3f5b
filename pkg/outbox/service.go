package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/dmcastano/evdex-backend/pkg/errors"
	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
)

// DomainEvent is what callers emit. The service wraps Data in a versioned
// envelope before persisting.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
}

type Service interface {
	// Emit records the event inside tx. It must be called with the same
	// transaction that applies the state change the event describes.
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "outbox repository is required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if !event.EventType.IsValid() {
		return apperrors.New(apperrors.CodeInternal, "unknown outbox event type")
	}
	if event.AggregateID == uuid.Nil {
		return apperrors.New(apperrors.CodeInternal, "aggregate id is required")
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "marshal event data")
	}
	// The row ID doubles as the envelope event ID so consumers can
	// deduplicate against the outbox table.
	eventID := uuid.New()
	envelope := PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "marshal event envelope")
	}

	row := models.OutboxEvent{
		ID:            eventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "insert outbox event")
	}
	return nil
}

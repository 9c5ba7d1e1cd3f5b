package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  published_at DATETIME,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func TestServiceEmitWritesEnvelope(t *testing.T) {
	db := openTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	aggregateID := uuid.New()
	actorID := uuid.New()
	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.OutboxEventContributionApproved,
			AggregateType: enums.OutboxAggregateContribution,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{UserID: actorID, Role: "moderator"},
			Data:          map[string]string{"make": "Hyundai"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, enums.OutboxEventContributionApproved, row.EventType)
	require.Equal(t, aggregateID, row.AggregateID)
	require.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	require.Equal(t, actorID, envelope.Actor.UserID)

	var data map[string]string
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, "Hyundai", data["make"])
}

func TestServiceEmitRejectsUnknownEventType(t *testing.T) {
	db := openTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.OutboxEventType("something.else"),
			AggregateType: enums.OutboxAggregateContribution,
			AggregateID:   uuid.New(),
		})
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)

	seed := func() models.OutboxEvent {
		row := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.OutboxEventContributionSubmitted,
			AggregateType: enums.OutboxAggregateContribution,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
		}
		require.NoError(t, db.Create(&row).Error)
		return row
	}
	first := seed()
	second := seed()

	rows, err := repo.FetchUnpublished(10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublished(first.ID))
	rows, err = repo.FetchUnpublished(10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, second.ID, rows[0].ID)

	require.NoError(t, repo.MarkFailed(second.ID, errors.New("topic unavailable")))
	var failed models.OutboxEvent
	require.NoError(t, db.First(&failed, "id = ?", second.ID).Error)
	require.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	require.Equal(t, "topic unavailable", *failed.LastError)

	// Attempt cap hides the row from the publisher.
	rows, err = repo.FetchUnpublished(10, 1)
	require.NoError(t, err)
	require.Empty(t, rows)
}

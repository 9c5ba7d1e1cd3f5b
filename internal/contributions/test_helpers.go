package contributions

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/internal/catalog"
	"github.com/dmcastano/evdex-backend/internal/ledger"
	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	"github.com/dmcastano/evdex-backend/pkg/logger"
	"github.com/dmcastano/evdex-backend/pkg/outbox"
)

func setupEngineTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS vehicles (
  id TEXT PRIMARY KEY,
  make TEXT NOT NULL,
  model TEXT NOT NULL,
  year INTEGER NOT NULL,
  battery_capacity_kwh REAL,
  range_km INTEGER,
  charging_speed_kw REAL,
  acceleration_sec REAL,
  top_speed_kmh INTEGER,
  price TEXT,
  charge_ports TEXT,
  description TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS vehicle_images (
  id TEXT PRIMARY KEY,
  vehicle_id TEXT NOT NULL,
  image_contribution_id TEXT NOT NULL,
  durable_ref TEXT NOT NULL,
  display_order INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS contributions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  change_type TEXT NOT NULL,
  target_vehicle_id TEXT,
  vehicle_data TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  rejection_comment TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  approved_at DATETIME,
  rejected_at DATETIME,
  cancelled_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS contribution_reviews (
  id TEXT PRIMARY KEY,
  contribution_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  vote INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_contribution_reviews_contribution_user
  ON contribution_reviews (contribution_id, user_id);`,
		`CREATE TABLE IF NOT EXISTS credit_events (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  contribution_id TEXT,
  type TEXT NOT NULL,
  amount INTEGER NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  published_at DATETIME,
  created_at DATETIME
);`,
	}
	for _, statement := range statements {
		require.NoError(t, db.Exec(statement).Error)
	}
	return db
}

// gormTxRunner adapts a bare test DB to the TxRunner contract.
type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type engineFixture struct {
	db      *gorm.DB
	svc     Service
	repo    *Repository
	reviews *ReviewRepository
	catalog *catalog.Repository
	ledger  ledger.Service
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	db := setupEngineTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "engine-test", Output: io.Discard})

	repo := NewRepository(db)
	reviews := NewReviewRepository(db)
	catalogRepo := catalog.NewRepository(db)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)
	outboxSvc, err := outbox.NewService(outbox.NewRepository(db))
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Reviews:   reviews,
		Catalog:   catalogRepo,
		Duplicate: NewDuplicateChecker(catalogRepo, 2, logg),
		Ledger:    ledgerSvc,
		Outbox:    outboxSvc,
		Tx:        gormTxRunner{db: db},
		Logger:    logg,
		Settings: Settings{
			RejectionCommentMinLen: 10,
			ApprovalCredit:         10,
			ClusterYearWindow:      2,
		},
	})
	require.NoError(t, err)

	return &engineFixture{
		db:      db,
		svc:     svc,
		repo:    repo,
		reviews: reviews,
		catalog: catalogRepo,
		ledger:  ledgerSvc,
	}
}

func (f *engineFixture) seedVehicle(t *testing.T, make, model string, year int) *models.Vehicle {
	t.Helper()
	vehicle := &models.Vehicle{
		ID:        uuid.New(),
		Make:      make,
		Model:     model,
		Year:      year,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.db.Create(vehicle).Error)
	return vehicle
}

func (f *engineFixture) seedContribution(t *testing.T, userID uuid.UUID, changeType enums.ChangeType, target *uuid.UUID, payload map[string]any) *models.Contribution {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	contribution := &models.Contribution{
		ID:              uuid.New(),
		UserID:          userID,
		ChangeType:      changeType,
		TargetVehicleID: target,
		VehicleData:     data,
		Status:          enums.ContributionStatusPending,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, f.db.Create(contribution).Error)
	return contribution
}

func vehiclePayload(make, model string, year int, extra map[string]any) json.RawMessage {
	payload := map[string]any{"make": make, "model": model, "year": year}
	for key, value := range extra {
		payload[key] = value
	}
	data, _ := json.Marshal(payload)
	return data
}

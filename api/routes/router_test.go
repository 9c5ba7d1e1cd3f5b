package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/internal/catalog"
	"github.com/dmcastano/evdex-backend/internal/contributions"
	"github.com/dmcastano/evdex-backend/internal/images"
	"github.com/dmcastano/evdex-backend/internal/ledger"
	pkgauth "github.com/dmcastano/evdex-backend/pkg/auth"
	"github.com/dmcastano/evdex-backend/pkg/config"
	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	"github.com/dmcastano/evdex-backend/pkg/logger"
	"github.com/dmcastano/evdex-backend/pkg/outbox"
)

var testJWT = config.JWTConfig{Secret: "router-test-secret", Issuer: "evdex-identity"}

var routerTestSchema = []string{
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
	`CREATE TABLE IF NOT EXISTS image_contributions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  vehicle_id TEXT NOT NULL,
  contribution_id TEXT,
  staged_path TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  rejection_comment TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  approved_at DATETIME,
  rejected_at DATETIME,
  cancelled_at DATETIME
);`,
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

type routerTxRunner struct {
	db *gorm.DB
}

func (r routerTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type routerFixture struct {
	db      *gorm.DB
	handler http.Handler
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	for _, statement := range routerTestSchema {
		require.NoError(t, db.Exec(statement).Error)
	}

	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	catalogRepo := catalog.NewRepository(db)
	contributionRepo := contributions.NewRepository(db)
	outboxSvc, err := outbox.NewService(outbox.NewRepository(db))
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)

	imageSvc, err := images.NewService(images.ServiceParams{
		Repo:                   images.NewRepository(db),
		Catalog:                catalogRepo,
		Proposals:              contributionRepo,
		Stager:                 images.NewPrefixStager("staged/", "images/"),
		Outbox:                 outboxSvc,
		Tx:                     routerTxRunner{db: db},
		Logger:                 logg,
		RejectionCommentMinLen: 10,
	})
	require.NoError(t, err)

	contributionSvc, err := contributions.NewService(contributions.ServiceParams{
		Repo:      contributionRepo,
		Reviews:   contributions.NewReviewRepository(db),
		Catalog:   catalogRepo,
		Duplicate: contributions.NewDuplicateChecker(catalogRepo, 2, logg),
		Ledger:    ledgerSvc,
		Outbox:    outboxSvc,
		Tx:        routerTxRunner{db: db},
		Logger:    logg,
		Settings: contributions.Settings{
			RejectionCommentMinLen: 10,
			ApprovalCredit:         10,
			ClusterYearWindow:      2,
		},
		ImageOrphans: imageSvc,
	})
	require.NoError(t, err)

	catalogSvc, err := catalog.NewService(catalogRepo, logg)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.JWT = testJWT

	handler := NewRouter(RouterParams{
		Config:        cfg,
		Logger:        logg,
		Contributions: contributionSvc,
		Images:        imageSvc,
		Catalog:       catalogSvc,
		Ledger:        ledgerSvc,
	})

	return &routerFixture{db: db, handler: handler}
}

func (f *routerFixture) token(t *testing.T, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := pkgauth.MintIdentityToken(testJWT, time.Now(), userID, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *routerFixture) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func dataField(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	return envelope.Data
}

func TestRouterRejectsAnonymousRequests(t *testing.T) {
	f := newRouterFixture(t)
	w := f.request(t, http.MethodGet, "/api/v1/contributions/pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterHealthLiveIsPublic(t *testing.T) {
	f := newRouterFixture(t)
	w := f.request(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterModerationFlow(t *testing.T) {
	f := newRouterFixture(t)
	submitter := uuid.New()
	voter := uuid.New()
	moderator := uuid.New()

	submitToken := f.token(t, submitter, enums.UserRoleMember)
	w := f.request(t, http.MethodPost, "/api/v1/contributions", submitToken, map[string]any{
		"change_type": "new",
		"vehicle_data": map[string]any{
			"make":     "Lucid",
			"model":    "Air",
			"year":     2026,
			"range_km": 830,
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	contributionID := dataField(t, w)["id"].(string)

	// Self-vote is blocked.
	w = f.request(t, http.MethodPost, "/api/v1/contributions/"+contributionID+"/votes", submitToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Peer vote counts.
	w = f.request(t, http.MethodPost, "/api/v1/contributions/"+contributionID+"/votes", f.token(t, voter, enums.UserRoleMember), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(1), dataField(t, w)["vote_count"])

	// Members cannot approve.
	w = f.request(t, http.MethodPost, "/api/v1/contributions/"+contributionID+"/approve", f.token(t, voter, enums.UserRoleMember), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Moderator approval applies the proposal and credits the submitter.
	w = f.request(t, http.MethodPost, "/api/v1/contributions/"+contributionID+"/approve", f.token(t, moderator, enums.UserRoleModerator), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "approved", dataField(t, w)["status"])

	var vehicleCount int64
	require.NoError(t, f.db.Model(&models.Vehicle{}).Count(&vehicleCount).Error)
	assert.Equal(t, int64(1), vehicleCount)

	// A second approval observes the terminal state.
	w = f.request(t, http.MethodPost, "/api/v1/contributions/"+contributionID+"/approve", f.token(t, moderator, enums.UserRoleModerator), nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	// The submitter sees the credit.
	w = f.request(t, http.MethodGet, "/api/v1/credits", submitToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(10), dataField(t, w)["balance"])
}

func TestRouterDuplicateSubmissionConflicts(t *testing.T) {
	f := newRouterFixture(t)
	vehicle := &models.Vehicle{ID: uuid.New(), Make: "Tesla", Model: "Model 3", Year: 2024, CreatedAt: time.Now()}
	require.NoError(t, f.db.Create(vehicle).Error)

	w := f.request(t, http.MethodPost, "/api/v1/contributions", f.token(t, uuid.New(), enums.UserRoleMember), map[string]any{
		"change_type": "new",
		"vehicle_data": map[string]any{
			"make":  "tesla",
			"model": "MODEL 3",
			"year":  2024,
		},
	})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func TestRouterAdminDeleteAndReconcile(t *testing.T) {
	f := newRouterFixture(t)
	vehicle := &models.Vehicle{ID: uuid.New(), Make: "Rivian", Model: "R1S", Year: 2025, CreatedAt: time.Now()}
	require.NoError(t, f.db.Create(vehicle).Error)

	contribution := &models.Contribution{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		ChangeType:      enums.ChangeTypeUpdate,
		TargetVehicleID: &vehicle.ID,
		VehicleData:     []byte(`{"make":"Rivian","model":"R1S","year":2025,"range_km":640}`),
		Status:          enums.ContributionStatusPending,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, f.db.Create(contribution).Error)

	moderatorToken := f.token(t, uuid.New(), enums.UserRoleModerator)
	adminToken := f.token(t, uuid.New(), enums.UserRoleAdmin)

	// Delete is admin-only.
	w := f.request(t, http.MethodDelete, fmt.Sprintf("/api/v1/vehicles/%s", vehicle.ID), moderatorToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.request(t, http.MethodDelete, fmt.Sprintf("/api/v1/vehicles/%s", vehicle.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.request(t, http.MethodPost, "/api/v1/moderation/reconcile-orphans", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), dataField(t, w)["removed"])

	var count int64
	require.NoError(t, f.db.Model(&models.Contribution{}).Count(&count).Error)
	assert.Zero(t, count)
}

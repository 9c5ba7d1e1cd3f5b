package images

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/internal/catalog"
	"github.com/dmcastano/evdex-backend/internal/contributions"
	"github.com/dmcastano/evdex-backend/internal/policy"
	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
	"github.com/dmcastano/evdex-backend/pkg/logger"
	"github.com/dmcastano/evdex-backend/pkg/outbox"
)

func setupImagesTestDB(t *testing.T) *gorm.DB {
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
		`CREATE TABLE IF NOT EXISTS vehicle_images (
  id TEXT PRIMARY KEY,
  vehicle_id TEXT NOT NULL,
  image_contribution_id TEXT NOT NULL,
  durable_ref TEXT NOT NULL,
  display_order INTEGER NOT NULL DEFAULT 0,
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

type recordingStager struct {
	promoted  []string
	discarded []string
	failNext  error
}

func (s *recordingStager) Promote(_ context.Context, stagedPath string) (string, error) {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return "", err
	}
	s.promoted = append(s.promoted, stagedPath)
	return "images/" + stagedPath, nil
}

func (s *recordingStager) Discard(_ context.Context, stagedPath string) error {
	s.discarded = append(s.discarded, stagedPath)
	return nil
}

type imagesFixture struct {
	db     *gorm.DB
	svc    Service
	repo   *Repository
	stager *recordingStager
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newImagesFixture(t *testing.T) *imagesFixture {
	t.Helper()

	db := setupImagesTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "images-test", Output: io.Discard})
	stager := &recordingStager{}
	repo := NewRepository(db)
	outboxSvc, err := outbox.NewService(outbox.NewRepository(db))
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:                   repo,
		Catalog:                catalog.NewRepository(db),
		Proposals:              contributions.NewRepository(db),
		Stager:                 stager,
		Outbox:                 outboxSvc,
		Tx:                     gormTxRunner{db: db},
		Logger:                 logg,
		RejectionCommentMinLen: 10,
	})
	require.NoError(t, err)

	return &imagesFixture{db: db, svc: svc, repo: repo, stager: stager}
}

func (f *imagesFixture) seedVehicle(t *testing.T) *models.Vehicle {
	t.Helper()
	vehicle := &models.Vehicle{
		ID:        uuid.New(),
		Make:      "Tesla",
		Model:     "Model Y",
		Year:      2024,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.db.Create(vehicle).Error)
	return vehicle
}

func (f *imagesFixture) seedImageContribution(t *testing.T, userID, vehicleID uuid.UUID) *models.ImageContribution {
	t.Helper()
	contribution := &models.ImageContribution{
		ID:         uuid.New(),
		UserID:     userID,
		VehicleID:  vehicleID,
		StagedPath: "staged/" + uuid.NewString() + ".jpg",
		Status:     enums.ContributionStatusPending,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, f.db.Create(contribution).Error)
	return contribution
}

func member(id uuid.UUID) policy.Actor {
	return policy.Actor{UserID: id, Role: enums.UserRoleMember}
}

func moderator(id uuid.UUID) policy.Actor {
	return policy.Actor{UserID: id, Role: enums.UserRoleModerator}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr, "expected typed error, got %v", err)
	require.Equal(t, code, appErr.Code())
}

func TestSubmitImageRequiresExistingVehicle(t *testing.T) {
	f := newImagesFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, member(uuid.New()), SubmitImageInput{
		VehicleID:  uuid.New(),
		StagedPath: "staged/front.jpg",
	})
	requireCode(t, err, pkgerrors.CodeNotFound)

	vehicle := f.seedVehicle(t)
	contribution, err := f.svc.Submit(ctx, member(uuid.New()), SubmitImageInput{
		VehicleID:  vehicle.ID,
		StagedPath: "staged/front.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusPending, contribution.Status)
}

func TestSubmitImageValidatesLinkedContribution(t *testing.T) {
	f := newImagesFixture(t)
	ctx := context.Background()
	vehicle := f.seedVehicle(t)

	missing := uuid.New()
	_, err := f.svc.Submit(ctx, member(uuid.New()), SubmitImageInput{
		VehicleID:      vehicle.ID,
		ContributionID: &missing,
		StagedPath:     "staged/side.jpg",
	})
	requireCode(t, err, pkgerrors.CodeNotFound)

	linked := &models.Contribution{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		ChangeType:  enums.ChangeTypeUpdate,
		VehicleData: []byte(`{"make":"Tesla","model":"Model Y","year":2024}`),
		Status:      enums.ContributionStatusRejected,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, f.db.Create(linked).Error)

	_, err = f.svc.Submit(ctx, member(uuid.New()), SubmitImageInput{
		VehicleID:      vehicle.ID,
		ContributionID: &linked.ID,
		StagedPath:     "staged/side.jpg",
	})
	requireCode(t, err, pkgerrors.CodePrecondition)
}

func TestApproveImagePromotesAndRecordsVehicleImage(t *testing.T) {
	f := newImagesFixture(t)
	ctx := context.Background()
	vehicle := f.seedVehicle(t)
	contribution := f.seedImageContribution(t, uuid.New(), vehicle.ID)

	approved, err := f.svc.Approve(ctx, moderator(uuid.New()), contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusApproved, approved.Status)
	require.Len(t, f.stager.promoted, 1)
	assert.Equal(t, contribution.StagedPath, f.stager.promoted[0])

	var image models.VehicleImage
	require.NoError(t, f.db.First(&image, "image_contribution_id = ?", contribution.ID).Error)
	assert.Equal(t, vehicle.ID, image.VehicleID)
	assert.Equal(t, "images/"+contribution.StagedPath, image.DurableRef)
	assert.Equal(t, 0, image.DisplayOrder)

	// Second image lands after the first.
	second := f.seedImageContribution(t, uuid.New(), vehicle.ID)
	_, err = f.svc.Approve(ctx, moderator(uuid.New()), second.ID)
	require.NoError(t, err)
	var secondImage models.VehicleImage
	require.NoError(t, f.db.First(&secondImage, "image_contribution_id = ?", second.ID).Error)
	assert.Equal(t, 1, secondImage.DisplayOrder)
}

func TestApproveImageRollsBackWhenPromotionFails(t *testing.T) {
	f := newImagesFixture(t)
	ctx := context.Background()
	vehicle := f.seedVehicle(t)
	contribution := f.seedImageContribution(t, uuid.New(), vehicle.ID)

	f.stager.failNext = errors.New("stage bucket unavailable")
	_, err := f.svc.Approve(ctx, moderator(uuid.New()), contribution.ID)
	requireCode(t, err, pkgerrors.CodeDependency)

	reloaded, err := f.repo.FindByID(ctx, contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusPending, reloaded.Status)

	var imageCount int64
	require.NoError(t, f.db.Model(&models.VehicleImage{}).Count(&imageCount).Error)
	assert.Zero(t, imageCount)
}

func TestRejectImageDiscardsStagedFile(t *testing.T) {
	f := newImagesFixture(t)
	ctx := context.Background()
	vehicle := f.seedVehicle(t)
	contribution := f.seedImageContribution(t, uuid.New(), vehicle.ID)

	_, err := f.svc.Reject(ctx, moderator(uuid.New()), contribution.ID, RejectInput{Comment: "short"})
	requireCode(t, err, pkgerrors.CodeValidation)

	rejected, err := f.svc.Reject(ctx, moderator(uuid.New()), contribution.ID, RejectInput{
		Comment: "image is watermarked stock photography",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusRejected, rejected.Status)
	require.Len(t, f.stager.discarded, 1)
	assert.Equal(t, contribution.StagedPath, f.stager.discarded[0])
}

func TestEditImageReplacesStagedFile(t *testing.T) {
	f := newImagesFixture(t)
	ctx := context.Background()
	vehicle := f.seedVehicle(t)
	owner := uuid.New()
	contribution := f.seedImageContribution(t, owner, vehicle.ID)
	original := contribution.StagedPath

	_, err := f.svc.Edit(ctx, member(owner), contribution.ID, EditImageInput{})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Edit(ctx, member(uuid.New()), contribution.ID, EditImageInput{
		StagedPath: "staged/intruder.jpg",
	})
	requireCode(t, err, pkgerrors.CodeForbidden)

	edited, err := f.svc.Edit(ctx, member(owner), contribution.ID, EditImageInput{
		StagedPath: "staged/better-angle.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "staged/better-angle.jpg", edited.StagedPath)
	require.Len(t, f.stager.discarded, 1)
	assert.Equal(t, original, f.stager.discarded[0])

	_, err = f.svc.Approve(ctx, moderator(uuid.New()), contribution.ID)
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, member(owner), contribution.ID, EditImageInput{
		StagedPath: "staged/too-late.jpg",
	})
	requireCode(t, err, pkgerrors.CodePrecondition)
}

func TestCancelImageOwnerOnly(t *testing.T) {
	f := newImagesFixture(t)
	ctx := context.Background()
	vehicle := f.seedVehicle(t)
	owner := uuid.New()
	contribution := f.seedImageContribution(t, owner, vehicle.ID)

	_, err := f.svc.Cancel(ctx, member(uuid.New()), contribution.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	cancelled, err := f.svc.Cancel(ctx, member(owner), contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusCancelled, cancelled.Status)
	require.Len(t, f.stager.discarded, 1)

	_, err = f.svc.Approve(ctx, moderator(uuid.New()), contribution.ID)
	requireCode(t, err, pkgerrors.CodePrecondition)
}

func TestCancelOrphanedImageContributions(t *testing.T) {
	f := newImagesFixture(t)
	ctx := context.Background()
	vehicle := f.seedVehicle(t)
	orphan := f.seedImageContribution(t, uuid.New(), vehicle.ID)
	require.NoError(t, f.db.Where("id = ?", vehicle.ID).Delete(&models.Vehicle{}).Error)

	surviving := f.seedVehicle(t)
	intact := f.seedImageContribution(t, uuid.New(), surviving.ID)

	cancelled, err := f.svc.CancelOrphaned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	reloaded, err := f.repo.FindByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusCancelled, reloaded.Status)

	untouched, err := f.repo.FindByID(ctx, intact.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContributionStatusPending, untouched.Status)

	again, err := f.svc.CancelOrphaned(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestPrefixStager(t *testing.T) {
	stager := NewPrefixStager("staged/", "images/")

	ref, err := stager.Promote(context.Background(), "staged/abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, "images/abc.jpg", ref)

	_, err = stager.Promote(context.Background(), "other/abc.jpg")
	require.Error(t, err)

	require.NoError(t, stager.Discard(context.Background(), "staged/abc.jpg"))
	require.Error(t, stager.Discard(context.Background(), ""))
}

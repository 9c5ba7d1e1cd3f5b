package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/pagination"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	vehicles := `
CREATE TABLE IF NOT EXISTS vehicles (
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
);`
	vehicleImages := `
CREATE TABLE IF NOT EXISTS vehicle_images (
  id TEXT PRIMARY KEY,
  vehicle_id TEXT NOT NULL,
  image_contribution_id TEXT NOT NULL,
  durable_ref TEXT NOT NULL,
  display_order INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(vehicles).Error)
	require.NoError(t, db.Exec(vehicleImages).Error)
	return db
}

func newVehicle(t *testing.T, db *gorm.DB, make, model string, year int, createdAt time.Time) *models.Vehicle {
	t.Helper()
	vehicle := &models.Vehicle{
		ID:        uuid.New(),
		Make:      make,
		Model:     model,
		Year:      year,
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Create(vehicle).Error)
	return vehicle
}

func TestFindByIdentityIsCaseInsensitive(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := newVehicle(t, db, "Hyundai", "Ioniq 5", 2024, time.Now())

	found, err := repo.FindByIdentity(ctx, "hyundai", "IONIQ 5", 2024)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, seeded.ID, found.ID)

	missing, err := repo.FindByIdentity(ctx, "hyundai", "IONIQ 5", 2023)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindByIdentityTrimsWhitespace(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	seeded := newVehicle(t, db, "Kia", "EV6", 2023, time.Now())

	found, err := repo.FindByIdentity(ctx, "  Kia ", " ev6 ", 2023)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, seeded.ID, found.ID)
}

func TestFindNearYearExcludesExactMatch(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	newVehicle(t, db, "Tesla", "Model 3", 2022, time.Now())
	newVehicle(t, db, "Tesla", "Model 3", 2023, time.Now())
	newVehicle(t, db, "Tesla", "Model 3", 2024, time.Now())
	newVehicle(t, db, "Tesla", "Model Y", 2023, time.Now())

	near, err := repo.FindNearYear(ctx, "tesla", "model 3", 2023, 2)
	require.NoError(t, err)
	require.Len(t, near, 2)
	assert.Equal(t, 2022, near[0].Year)
	assert.Equal(t, 2024, near[1].Year)
}

func TestListPaginatesWithCursor(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		newVehicle(t, db, "Nissan", "Leaf", 2020+i, base.Add(time.Duration(i)*time.Minute))
	}

	first, err := repo.List(ctx, pagination.Params{Limit: 3}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, first.Vehicles, 3)
	require.NotEmpty(t, first.NextCursor)
	assert.Equal(t, 2024, first.Vehicles[0].Year)

	second, err := repo.List(ctx, pagination.Params{Limit: 3, Cursor: first.NextCursor}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, second.Vehicles, 2)
	assert.Empty(t, second.NextCursor)
	assert.Equal(t, 2020, second.Vehicles[1].Year)
}

func TestListFiltersByMakeAndYearRange(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	newVehicle(t, db, "BMW", "i4", 2022, time.Now())
	newVehicle(t, db, "BMW", "iX", 2024, time.Now())
	newVehicle(t, db, "Audi", "Q4 e-tron", 2023, time.Now())

	makeFilter := "bmw"
	yearMin := 2023
	result, err := repo.List(ctx, pagination.Params{}, ListFilters{Make: &makeFilter, YearMin: &yearMin})
	require.NoError(t, err)
	require.Len(t, result.Vehicles, 1)
	assert.Equal(t, "iX", result.Vehicles[0].Model)
}

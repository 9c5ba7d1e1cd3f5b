package contributions

import (
	"context"
	"fmt"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/logger"
)

// vehicleFinder is the slice of the catalog the duplicate detector needs.
type vehicleFinder interface {
	FindByIdentity(ctx context.Context, make, model string, year int) (*models.Vehicle, error)
	FindNearYear(ctx context.Context, make, model string, year, window int) ([]models.Vehicle, error)
}

// DuplicateChecker flags NEW candidates that already exist in the catalog.
// It is an assistive safeguard, not a correctness gate: any store failure is
// logged and the check reports no duplicate so the submission can proceed.
type DuplicateChecker struct {
	catalog    vehicleFinder
	yearWindow int
	logg       *logger.Logger
}

// NewDuplicateChecker builds a checker with the configured near-year window.
func NewDuplicateChecker(catalog vehicleFinder, yearWindow int, logg *logger.Logger) *DuplicateChecker {
	if yearWindow < 0 {
		yearWindow = 0
	}
	return &DuplicateChecker{catalog: catalog, yearWindow: yearWindow, logg: logg}
}

// Check evaluates one candidate. Case-insensitive make+model with an exact
// year match is a duplicate; the same make+model within the near-year window
// only feeds the suggestion list.
func (c *DuplicateChecker) Check(ctx context.Context, candidate candidateRecord) DuplicateVerdict {
	existing, err := c.catalog.FindByIdentity(ctx, candidate.Make, candidate.Model, candidate.Year)
	if err != nil {
		c.failOpen(ctx, err)
		return DuplicateVerdict{}
	}
	if existing != nil {
		return DuplicateVerdict{
			IsDuplicate:     true,
			ExistingVehicle: existing,
			Message:         fmt.Sprintf("%s %s (%d) already exists in the catalog", existing.Make, existing.Model, existing.Year),
		}
	}

	near, err := c.catalog.FindNearYear(ctx, candidate.Make, candidate.Model, candidate.Year, c.yearWindow)
	if err != nil {
		c.failOpen(ctx, err)
		return DuplicateVerdict{}
	}
	if len(near) == 0 {
		return DuplicateVerdict{}
	}

	suggestions := make([]string, 0, len(near))
	for _, vehicle := range near {
		suggestions = append(suggestions, fmt.Sprintf("%s %s (%d)", vehicle.Make, vehicle.Model, vehicle.Year))
	}
	return DuplicateVerdict{
		Suggestions: suggestions,
		Message:     "similar vehicles exist for nearby model years",
	}
}

func (c *DuplicateChecker) failOpen(ctx context.Context, err error) {
	if c.logg != nil {
		c.logg.Error(ctx, "duplicate check failed, proceeding without verdict", err)
	}
}

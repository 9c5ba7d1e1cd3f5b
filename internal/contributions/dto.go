package contributions

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
)

// SubmitContributionInput is the validated payload to create a contribution.
// VehicleData is kept as raw JSON so the stored payload is byte-for-byte what
// the submitter sent.
type SubmitContributionInput struct {
	ChangeType      enums.ChangeType
	TargetVehicleID *uuid.UUID
	VehicleData     json.RawMessage
}

// EditContributionInput replaces the candidate record wholesale.
type EditContributionInput struct {
	TargetVehicleID *uuid.UUID
	VehicleData     json.RawMessage
}

// RejectInput carries the moderator's required feedback.
type RejectInput struct {
	Comment string
}

// ListFilters narrows contribution listings.
type ListFilters struct {
	Status          *enums.ContributionStatus
	ChangeType      *enums.ChangeType
	UserID          *uuid.UUID
	TargetVehicleID *uuid.UUID
}

// ContributionDTO is a contribution plus its recomputed vote count. Counts
// are always derived from review rows, never cached.
type ContributionDTO struct {
	Contribution models.Contribution
	VoteCount    int
}

// ListResult is one page of contributions plus the continuation cursor.
type ListResult struct {
	Contributions []ContributionDTO
	NextCursor    string
}

// DuplicateVerdict is the duplicate detector's answer for a NEW candidate.
type DuplicateVerdict struct {
	IsDuplicate     bool
	ExistingVehicle *models.Vehicle
	Suggestions     []string
	Message         string
}

// OrphanRecord identifies one removed orphan contribution.
type OrphanRecord struct {
	ContributionID   uuid.UUID `json:"contribution_id"`
	MissingVehicleID uuid.UUID `json:"missing_vehicle_id"`
}

// ReconcileReport summarizes one orphan reconciliation pass.
type ReconcileReport struct {
	Removed                int            `json:"removed"`
	Orphans                []OrphanRecord `json:"orphans"`
	CancelledImageProposal int            `json:"cancelled_image_proposals"`
}

// candidateRecord is the minimal view of vehicle_data the engine itself needs.
// Everything else in the payload passes through untouched.
type candidateRecord struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
}

func parseCandidate(data json.RawMessage) (candidateRecord, error) {
	var candidate candidateRecord
	if len(data) == 0 {
		return candidate, fmt.Errorf("vehicle data is required")
	}
	if err := json.Unmarshal(data, &candidate); err != nil {
		return candidate, fmt.Errorf("vehicle data is not valid JSON: %w", err)
	}
	if strings.TrimSpace(candidate.Make) == "" {
		return candidate, fmt.Errorf("make is required")
	}
	if strings.TrimSpace(candidate.Model) == "" {
		return candidate, fmt.Errorf("model is required")
	}
	if candidate.Year == 0 {
		return candidate, fmt.Errorf("year is required")
	}
	return candidate, nil
}

// applyCandidate unmarshals the stored payload over the vehicle row. The
// payload replaces the full descriptive field set; absent optional fields
// reset to null rather than surviving from the previous revision.
func applyCandidate(data json.RawMessage, vehicle *models.Vehicle) error {
	replacement := models.Vehicle{
		ID:        vehicle.ID,
		CreatedAt: vehicle.CreatedAt,
	}
	if err := json.Unmarshal(data, &replacement); err != nil {
		return err
	}
	replacement.ID = vehicle.ID
	replacement.CreatedAt = vehicle.CreatedAt
	replacement.UpdatedAt = time.Now()
	replacement.Images = nil
	*vehicle = replacement
	return nil
}

package images

import (
	"github.com/google/uuid"

	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
)

// SubmitImageInput is the validated payload to propose a vehicle image.
type SubmitImageInput struct {
	VehicleID      uuid.UUID
	ContributionID *uuid.UUID
	StagedPath     string
}

// EditImageInput replaces the staged file reference on a pending proposal.
type EditImageInput struct {
	StagedPath string
}

// RejectInput carries the moderator's required feedback.
type RejectInput struct {
	Comment string
}

// ListFilters narrows image contribution listings.
type ListFilters struct {
	Status    *enums.ContributionStatus
	UserID    *uuid.UUID
	VehicleID *uuid.UUID
}

// ListResult is one page of image contributions plus the continuation cursor.
type ListResult struct {
	Contributions []models.ImageContribution
	NextCursor    string
}

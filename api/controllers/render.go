package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmcastano/evdex-backend/api/middleware"
	"github.com/dmcastano/evdex-backend/internal/contributions"
	"github.com/dmcastano/evdex-backend/internal/policy"
	"github.com/dmcastano/evdex-backend/pkg/db/models"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
)

// actorFromRequest rebuilds the acting identity from the values the auth
// middleware attached to the context.
func actorFromRequest(r *http.Request) (policy.Actor, error) {
	rawID := middleware.UserIDFromContext(r.Context())
	if rawID == "" {
		return policy.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return policy.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return policy.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid actor role")
	}
	return policy.Actor{UserID: userID, Role: role}, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid id")
	}
	return id, nil
}

type contributionPayload struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	ChangeType       string          `json:"change_type"`
	TargetVehicleID  *uuid.UUID      `json:"target_vehicle_id,omitempty"`
	VehicleData      json.RawMessage `json:"vehicle_data"`
	Status           string          `json:"status"`
	RejectionComment *string         `json:"rejection_comment,omitempty"`
	VoteCount        int             `json:"vote_count"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	RejectedAt       *time.Time      `json:"rejected_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
}

func renderContribution(dto contributions.ContributionDTO) contributionPayload {
	c := dto.Contribution
	return contributionPayload{
		ID:               c.ID,
		UserID:           c.UserID,
		ChangeType:       c.ChangeType.String(),
		TargetVehicleID:  c.TargetVehicleID,
		VehicleData:      c.VehicleData,
		Status:           c.Status.String(),
		RejectionComment: c.RejectionComment,
		VoteCount:        dto.VoteCount,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		ApprovedAt:       c.ApprovedAt,
		RejectedAt:       c.RejectedAt,
		CancelledAt:      c.CancelledAt,
	}
}

func renderContributionPage(result *contributions.ListResult) map[string]any {
	items := make([]contributionPayload, 0, len(result.Contributions))
	for _, dto := range result.Contributions {
		items = append(items, renderContribution(dto))
	}
	return map[string]any{
		"contributions": items,
		"next_cursor":   result.NextCursor,
	}
}

type imageContributionPayload struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	VehicleID        uuid.UUID  `json:"vehicle_id"`
	ContributionID   *uuid.UUID `json:"contribution_id,omitempty"`
	StagedPath       string     `json:"staged_path"`
	Status           string     `json:"status"`
	RejectionComment *string    `json:"rejection_comment,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func renderImageContribution(c *models.ImageContribution) imageContributionPayload {
	return imageContributionPayload{
		ID:               c.ID,
		UserID:           c.UserID,
		VehicleID:        c.VehicleID,
		ContributionID:   c.ContributionID,
		StagedPath:       c.StagedPath,
		Status:           c.Status.String(),
		RejectionComment: c.RejectionComment,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

type creditEventPayload struct {
	ID             uuid.UUID  `json:"id"`
	ContributionID *uuid.UUID `json:"contribution_id,omitempty"`
	Type           string     `json:"type"`
	Amount         int        `json:"amount"`
	CreatedAt      time.Time  `json:"created_at"`
}

func renderCreditEvents(events []models.CreditEvent) []creditEventPayload {
	items := make([]creditEventPayload, 0, len(events))
	for _, event := range events {
		items = append(items, creditEventPayload{
			ID:             event.ID,
			ContributionID: event.ContributionID,
			Type:           event.Type.String(),
			Amount:         event.Amount,
			CreatedAt:      event.CreatedAt,
		})
	}
	return items
}

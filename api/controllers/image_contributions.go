package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dmcastano/evdex-backend/api/responses"
	"github.com/dmcastano/evdex-backend/api/validators"
	imagesvc "github.com/dmcastano/evdex-backend/internal/images"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
	"github.com/dmcastano/evdex-backend/pkg/logger"
)

type submitImageRequest struct {
	VehicleID      string  `json:"vehicle_id" validate:"required"`
	ContributionID *string `json:"contribution_id,omitempty"`
	StagedPath     string  `json:"staged_path" validate:"required"`
}

// SubmitImageContribution proposes an already-staged image for a vehicle.
func SubmitImageContribution(svc imagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload submitImageRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vehicleID, err := uuid.Parse(payload.VehicleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vehicle id"))
			return
		}

		input := imagesvc.SubmitImageInput{
			VehicleID:  vehicleID,
			StagedPath: payload.StagedPath,
		}
		if payload.ContributionID != nil {
			contributionID, err := uuid.Parse(*payload.ContributionID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid contribution id"))
				return
			}
			input.ContributionID = &contributionID
		}

		contribution, err := svc.Submit(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, renderImageContribution(contribution))
	}
}

type editImageRequest struct {
	StagedPath string `json:"staged_path" validate:"required"`
}

// EditImageContribution replaces the staged file on a pending image
// proposal. Owner-only.
func EditImageContribution(svc imagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := pathID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload editImageRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contribution, err := svc.Edit(r.Context(), actor, id, imagesvc.EditImageInput{StagedPath: payload.StagedPath})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderImageContribution(contribution))
	}
}

// CancelImageContribution withdraws a pending image proposal. Owner-only.
func CancelImageContribution(svc imagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := pathID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contribution, err := svc.Cancel(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderImageContribution(contribution))
	}
}

// GetImageContribution returns one image proposal.
func GetImageContribution(svc imagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contribution, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderImageContribution(contribution))
	}
}

// ListImageContributions returns a cursor-paginated page of image proposals.
func ListImageContributions(svc imagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, err := imageFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]imageContributionPayload, 0, len(result.Contributions))
		for i := range result.Contributions {
			items = append(items, renderImageContribution(&result.Contributions[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"image_contributions": items,
			"next_cursor":         result.NextCursor,
		})
	}
}

// ApproveImageContribution promotes the staged file and attaches the image to
// the vehicle. Moderator or admin only; no credit is issued.
func ApproveImageContribution(svc imagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := pathID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contribution, err := svc.Approve(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderImageContribution(contribution))
	}
}

// RejectImageContribution declines the proposal and discards the staged file.
func RejectImageContribution(svc imagesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := pathID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload rejectContributionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contribution, err := svc.Reject(r.Context(), actor, id, imagesvc.RejectInput{Comment: payload.Comment})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderImageContribution(contribution))
	}
}

func imageFilters(r *http.Request) (imagesvc.ListFilters, error) {
	var filters imagesvc.ListFilters

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseContributionStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("user_id")); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id filter")
		}
		filters.UserID = &userID
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("vehicle_id")); raw != "" {
		vehicleID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vehicle id filter")
		}
		filters.VehicleID = &vehicleID
	}

	return filters, nil
}

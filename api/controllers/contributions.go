package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dmcastano/evdex-backend/api/responses"
	"github.com/dmcastano/evdex-backend/api/validators"
	contribsvc "github.com/dmcastano/evdex-backend/internal/contributions"
	"github.com/dmcastano/evdex-backend/pkg/enums"
	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
	"github.com/dmcastano/evdex-backend/pkg/logger"
	"github.com/dmcastano/evdex-backend/pkg/pagination"
)

type submitContributionRequest struct {
	ChangeType      string          `json:"change_type" validate:"required,oneof=new update"`
	TargetVehicleID *string         `json:"target_vehicle_id,omitempty"`
	VehicleData     json.RawMessage `json:"vehicle_data" validate:"required"`
}

func (req submitContributionRequest) toInput() (contribsvc.SubmitContributionInput, error) {
	changeType, err := enums.ParseChangeType(strings.TrimSpace(req.ChangeType))
	if err != nil {
		return contribsvc.SubmitContributionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid change type")
	}
	input := contribsvc.SubmitContributionInput{
		ChangeType:  changeType,
		VehicleData: req.VehicleData,
	}
	if req.TargetVehicleID != nil {
		target, err := uuid.Parse(*req.TargetVehicleID)
		if err != nil {
			return contribsvc.SubmitContributionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target vehicle id")
		}
		input.TargetVehicleID = &target
	}
	return input, nil
}

// SubmitContribution handles new vehicle proposals. NEW candidates pass
// through duplicate detection before the row is written.
func SubmitContribution(svc contribsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload submitContributionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Submit(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, renderContribution(*dto))
	}
}

type editContributionRequest struct {
	TargetVehicleID *string         `json:"target_vehicle_id,omitempty"`
	VehicleData     json.RawMessage `json:"vehicle_data" validate:"required"`
}

// EditContribution replaces a pending contribution's candidate record.
// Owner-only while pending.
func EditContribution(svc contribsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload editContributionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := contribsvc.EditContributionInput{VehicleData: payload.VehicleData}
		if payload.TargetVehicleID != nil {
			target, err := uuid.Parse(*payload.TargetVehicleID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target vehicle id"))
				return
			}
			input.TargetVehicleID = &target
		}

		dto, err := svc.Edit(r.Context(), actor, id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderContribution(*dto))
	}
}

// CancelContribution withdraws a pending contribution. Owner-only.
func CancelContribution(svc contribsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		dto, err := svc.Cancel(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderContribution(*dto))
	}
}

// GetContribution returns one contribution with its vote count.
func GetContribution(svc contribsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderContribution(*dto))
	}
}

// ListContributions returns a cursor-paginated page with optional filters.
func ListContributions(svc contribsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, err := contributionFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderContributionPage(result))
	}
}

// ListPendingContributions is the moderation queue, oldest votes recomputed
// per row.
func ListPendingContributions(svc contribsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListPending(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderContributionPage(result))
	}
}

// VoteContribution records one peer endorsement.
func VoteContribution(svc contribsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		dto, err := svc.Vote(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, renderContribution(*dto))
	}
}

// ApproveContribution applies the proposal to the catalog and credits the
// submitter. Moderator or admin only.
func ApproveContribution(svc contribsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		dto, err := svc.Approve(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderContribution(*dto))
	}
}

type rejectContributionRequest struct {
	Comment string `json:"comment" validate:"required"`
}

// RejectContribution declines the proposal with a mandatory comment.
func RejectContribution(svc contribsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		dto, err := svc.Reject(r.Context(), actor, id, contribsvc.RejectInput{Comment: payload.Comment})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, renderContribution(*dto))
	}
}

// RelatedContributions returns pending proposals about the same or a nearby
// vehicle.
func RelatedContributions(svc contribsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		related, err := svc.Related(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]contributionPayload, 0, len(related))
		for _, dto := range related {
			items = append(items, renderContribution(dto))
		}
		responses.WriteSuccess(w, map[string]any{"contributions": items})
	}
}

func paginationParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func contributionFilters(r *http.Request) (contribsvc.ListFilters, error) {
	var filters contribsvc.ListFilters

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseContributionStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("change_type")); raw != "" {
		changeType, err := enums.ParseChangeType(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid change type filter")
		}
		filters.ChangeType = &changeType
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("user_id")); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id filter")
		}
		filters.UserID = &userID
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("target_vehicle_id")); raw != "" {
		target, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target vehicle id filter")
		}
		filters.TargetVehicleID = &target
	}

	return filters, nil
}

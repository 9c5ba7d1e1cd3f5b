package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dmcastano/evdex-backend/api/responses"
	catalogsvc "github.com/dmcastano/evdex-backend/internal/catalog"
	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
	"github.com/dmcastano/evdex-backend/pkg/logger"
)

// GetVehicle returns one catalog entry with its approved images.
func GetVehicle(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vehicle, err := svc.GetVehicle(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, vehicle)
	}
}

// ListVehicles returns a cursor-paginated catalog page.
func ListVehicles(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, err := vehicleFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListVehicles(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"vehicles":    result.Vehicles,
			"next_cursor": result.NextCursor,
		})
	}
}

// DeleteVehicle removes a catalog entry outright. Admin-only; proposals left
// pointing at the removed vehicle are swept by the orphan reconciler.
func DeleteVehicle(svc catalogsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteVehicle(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"deleted": id})
	}
}

func vehicleFilters(r *http.Request) (catalogsvc.ListFilters, error) {
	var filters catalogsvc.ListFilters

	if raw := strings.TrimSpace(r.URL.Query().Get("make")); raw != "" {
		filters.Make = &raw
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("model")); raw != "" {
		filters.Model = &raw
	}
	filters.Query = strings.TrimSpace(r.URL.Query().Get("q"))

	for key, dest := range map[string]**int{
		"year":     &filters.Year,
		"year_min": &filters.YearMin,
		"year_max": &filters.YearMax,
	} {
		raw := strings.TrimSpace(r.URL.Query().Get(key))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").
				WithDetails(map[string]any{"field": key})
		}
		*dest = &value
	}

	return filters, nil
}

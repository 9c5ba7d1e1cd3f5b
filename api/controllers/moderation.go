package controllers

import (
	"net/http"

	"github.com/dmcastano/evdex-backend/api/responses"
	contribsvc "github.com/dmcastano/evdex-backend/internal/contributions"
	"github.com/dmcastano/evdex-backend/pkg/logger"
)

// ReconcileOrphans runs one orphan reconciliation pass on demand. The cron
// worker runs the same pass on a schedule; this endpoint exists for admins
// who just deleted a vehicle and want the sweep now.
func ReconcileOrphans(svc contribsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.ReconcileOrphans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, report)
	}
}

package controllers

import (
	"net/http"

	"github.com/dmcastano/evdex-backend/api/responses"
	ledgersvc "github.com/dmcastano/evdex-backend/internal/ledger"
	"github.com/dmcastano/evdex-backend/pkg/logger"
)

// GetCredits returns the caller's credit balance and event history.
func GetCredits(svc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.History(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"balance": balance,
			"events":  renderCreditEvents(history),
		})
	}
}

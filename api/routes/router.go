package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmcastano/evdex-backend/api/controllers"
	"github.com/dmcastano/evdex-backend/api/middleware"
	"github.com/dmcastano/evdex-backend/internal/catalog"
	"github.com/dmcastano/evdex-backend/internal/contributions"
	"github.com/dmcastano/evdex-backend/internal/images"
	"github.com/dmcastano/evdex-backend/internal/ledger"
	"github.com/dmcastano/evdex-backend/pkg/config"
	"github.com/dmcastano/evdex-backend/pkg/db"
	"github.com/dmcastano/evdex-backend/pkg/logger"
	"github.com/dmcastano/evdex-backend/pkg/redis"
)

// RouterParams bundles everything the HTTP surface depends on.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DBPinger      db.Pinger
	RedisPinger   redis.Pinger
	Sessions      redis.SessionChecker
	Contributions contributions.Service
	Images        images.Service
	Catalog       catalog.Service
	Ledger        ledger.Service
}

// NewRouter wires the moderation API under /api/v1.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DBPinger, params.RedisPinger))
	})

	authed := middleware.Auth(cfg.JWT, params.Sessions, logg)
	moderator := middleware.RequireModerator(logg)
	admin := middleware.RequireAdmin(logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authed)

		r.Route("/contributions", func(r chi.Router) {
			r.Post("/", controllers.SubmitContribution(params.Contributions, logg))
			r.Get("/", controllers.ListContributions(params.Contributions, logg))
			r.Get("/pending", controllers.ListPendingContributions(params.Contributions, logg))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", controllers.GetContribution(params.Contributions, logg))
				r.Put("/", controllers.EditContribution(params.Contributions, logg))
				r.Delete("/", controllers.CancelContribution(params.Contributions, logg))
				r.Post("/votes", controllers.VoteContribution(params.Contributions, logg))
				r.Get("/related", controllers.RelatedContributions(params.Contributions, logg))
				r.With(moderator).Post("/approve", controllers.ApproveContribution(params.Contributions, logg))
				r.With(moderator).Post("/reject", controllers.RejectContribution(params.Contributions, logg))
			})
		})

		r.Route("/image-contributions", func(r chi.Router) {
			r.Post("/", controllers.SubmitImageContribution(params.Images, logg))
			r.Get("/", controllers.ListImageContributions(params.Images, logg))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", controllers.GetImageContribution(params.Images, logg))
				r.Put("/", controllers.EditImageContribution(params.Images, logg))
				r.Delete("/", controllers.CancelImageContribution(params.Images, logg))
				r.With(moderator).Post("/approve", controllers.ApproveImageContribution(params.Images, logg))
				r.With(moderator).Post("/reject", controllers.RejectImageContribution(params.Images, logg))
			})
		})

		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/", controllers.ListVehicles(params.Catalog, logg))
			r.Get("/{id}", controllers.GetVehicle(params.Catalog, logg))
			r.With(admin).Delete("/{id}", controllers.DeleteVehicle(params.Catalog, logg))
		})

		r.Get("/credits", controllers.GetCredits(params.Ledger, logg))

		r.Route("/moderation", func(r chi.Router) {
			r.With(admin).Post("/reconcile-orphans", controllers.ReconcileOrphans(params.Contributions, logg))
		})
	})

	return r
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	journalhandler "github.com/polaris-wellness/polaris/backend/internal/handler/journal"
	turnhandler "github.com/polaris-wellness/polaris/backend/internal/handler/turn"
	"github.com/polaris-wellness/polaris/backend/internal/middleware"
	journalservice "github.com/polaris-wellness/polaris/backend/internal/service/journal"
	"github.com/polaris-wellness/polaris/backend/internal/service/turn"
	"github.com/polaris-wellness/polaris/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(turnDeps turn.Deps, journalSvc *journalservice.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	turnhandler.New(turnDeps).RegisterRoutes(r)
	journalhandler.New(journalSvc).RegisterRoutes(r)

	return r
}

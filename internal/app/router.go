package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tallybook/tallybook/internal/accounts"
	"github.com/tallybook/tallybook/internal/audit"
	"github.com/tallybook/tallybook/internal/auth"
	"github.com/tallybook/tallybook/internal/payees"
	"github.com/tallybook/tallybook/internal/shared"
	"github.com/tallybook/tallybook/internal/stats"
	"github.com/tallybook/tallybook/internal/users"
	"github.com/tallybook/tallybook/internal/vouchers"
	"github.com/tallybook/tallybook/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	AuthHandler     *auth.Handler
	AuthMiddleware  auth.Middleware
	AccountsHandler *accounts.Handler
	PayeesHandler   *payees.Handler
	VouchersHandler *vouchers.Handler
	AuditHandler    *audit.Handler
	UsersHandler    *users.Handler
	StatsHandler    *stats.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with the default stack.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
	}) {
		r.Use(mw)
	}
	r.Use(params.AuthMiddleware.ResolveActor)
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.RequireUser)
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.PayeesHandler != nil {
			r.Route("/payees", params.PayeesHandler.MountRoutes)
		}
		if params.VouchersHandler != nil {
			r.Route("/vouchers", params.VouchersHandler.MountRoutes)
		}
		if params.StatsHandler != nil {
			r.Route("/stats", params.StatsHandler.MountRoutes)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.RequireAdmin)
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

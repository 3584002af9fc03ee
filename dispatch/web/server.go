package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v4/pgxpool"

	"go.fieldcore.build/dispatch/auth"
	"go.fieldcore.build/dispatch/routing"
	"go.fieldcore.build/dispatch/scoring"
	"go.fieldcore.build/dispatch/tenant"
	"go.fieldcore.build/go/httputils"
)

// Server holds every collaborator the HTTP Surface's handlers close over.
type Server struct {
	gateway    *tenant.Gateway
	issuer     *auth.TokenIssuer
	eta        *auth.ETASigner
	scorer     *scoring.Scorer
	routing    routing.Client
	isLocal    bool
	maxAssignmentsPerRun int
}

// Config bundles Server's construction parameters.
type Config struct {
	Pool                 *pgxpool.Pool
	Issuer               *auth.TokenIssuer
	ETA                  *auth.ETASigner
	Routing              routing.Client
	IsLocal              bool
	MaxAssignmentsPerRun int
}

// New builds a Server ready to have its Router mounted.
func New(cfg Config) *Server {
	return &Server{
		gateway:              tenant.NewGateway(cfg.Pool),
		issuer:               cfg.Issuer,
		eta:                  cfg.ETA,
		scorer:               scoring.NewScorer(cfg.Routing),
		routing:              cfg.Routing,
		isLocal:              cfg.IsLocal,
		maxAssignmentsPerRun: cfg.MaxAssignmentsPerRun,
	}
}

// Router builds the full chi.Router for this service, per spec.md §6's
// route table.
func (s *Server) Router() http.Handler {
	root := chi.NewRouter()
	root.Use(requestIDMiddleware, recoverMiddleware, securityHeaders(s.isLocal))

	root.With(metricsMiddleware("health")).Get("/health", httputils.ReadyHandleFunc)
	root.With(metricsMiddleware("health_live")).Get("/health/live", httputils.ReadyHandleFunc)
	root.With(metricsMiddleware("health_ready")).Get("/health/ready", s.handleHealthReady)

	public := chi.NewRouter()
	public.Use(rateLimitMiddleware(5, 10))
	public.With(metricsMiddleware("login")).Post("/login", s.handleLogin)
	public.With(metricsMiddleware("register")).Post("/register", s.handleRegister)
	public.With(metricsMiddleware("onboard")).Post("/onboard", s.handleOnboard)
	root.Mount("/", public)

	root.With(metricsMiddleware("eta_get")).Get("/eta/{token}", s.handleGetETA)

	root.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.issuer))
		r.With(metricsMiddleware("jobs_create")).Post("/jobs", s.handleCreateJob)
		r.With(metricsMiddleware("jobs_list")).Get("/jobs", s.handleListJobs)
		r.With(metricsMiddleware("jobs_get")).Get("/jobs/{jobID}", s.handleGetJob)
		r.With(metricsMiddleware("jobs_patch")).Patch("/jobs/{jobID}", s.handlePatchJob)
		r.With(metricsMiddleware("jobs_put_status")).Put("/jobs/{jobID}/status", s.handlePutJobStatus)
		r.With(metricsMiddleware("jobs_close")).Post("/jobs/{jobID}/close", s.handleCloseJob)
		r.With(metricsMiddleware("jobs_dispatch_override")).Post("/jobs/{jobID}/dispatch-override", s.handleDispatchOverride)
		r.With(metricsMiddleware("jobs_reassign")).Post("/jobs/{jobID}/reassign", s.handleReassign)
		r.With(metricsMiddleware("jobs_batch_dispatch")).Post("/jobs/batch-dispatch", s.handleBatchDispatch)
		r.With(metricsMiddleware("jobs_time_tracking_dispatched")).Post("/jobs/{jobID}/time-tracking/dispatched", s.handleTimeTracking("dispatched"))
		r.With(metricsMiddleware("jobs_time_tracking_departed")).Post("/jobs/{jobID}/time-tracking/departed", s.handleTimeTracking("departed"))
		r.With(metricsMiddleware("jobs_time_tracking_arrived")).Post("/jobs/{jobID}/time-tracking/arrived", s.handleTimeTracking("arrived"))
		r.With(metricsMiddleware("jobs_time_tracking_work_started")).Post("/jobs/{jobID}/time-tracking/work-started", s.handleTimeTracking("work-started"))
		r.With(metricsMiddleware("jobs_time_tracking_work_ended")).Post("/jobs/{jobID}/time-tracking/work-ended", s.handleTimeTracking("work-ended"))
		r.With(metricsMiddleware("jobs_time_tracking_departed_job")).Post("/jobs/{jobID}/time-tracking/departed-job", s.handleTimeTracking("departed-job"))
		r.With(metricsMiddleware("eta_issue")).Post("/eta/token", s.handleIssueETA)
	})

	root.With(metricsMiddleware("sms_inbound")).Post("/sms/inbound", s.handleSMSInbound)

	return root
}

func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.gateway.Pool().Ping(ctx); err != nil {
		httputils.WriteJSON(w, map[string]string{"status": "not ready"}, http.StatusServiceUnavailable)
		return
	}
	httputils.WriteJSON(w, map[string]string{"status": "ready"}, http.StatusOK)
}

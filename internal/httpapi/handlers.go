package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/maulvi-zm/trackure/internal/activity"
	"github.com/maulvi-zm/trackure/internal/auth"
	"github.com/maulvi-zm/trackure/internal/obs"
	"github.com/maulvi-zm/trackure/internal/routeguard"
	"github.com/maulvi-zm/trackure/internal/stream"
)

// ReadyProbe checks that the database answers. A nil DB is always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Roles    *auth.Service
	Users    auth.UserStore
	Verifier auth.Verifier

	// DevTokens enables POST /auth/dev-token when set.
	DevTokens   *auth.SecretVerifier
	DevTokenTTL time.Duration

	Activity *activity.Logger
	Query    *activity.Query
	Routes   *routeguard.Policy

	// Feed enables GET /activity/stream when set.
	Feed *stream.Feed

	Ready   ReadyProbe
	Version string
}

// Options tune the middleware chain.
type Options struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64

	// TrustedProxies are CIDRs or addresses allowed to set X-Forwarded-For.
	TrustedProxies []string
}

// API is the HTTP layer.
type API struct {
	router  *mux.Router
	deps    Deps
	opts    Options
	proxies TrustedProxies
	log     logrus.FieldLogger
}

func New(deps Deps, opts Options) (*API, error) {
	switch {
	case deps.Roles == nil:
		return nil, errors.New("httpapi: role service is required")
	case deps.Users == nil:
		return nil, errors.New("httpapi: user store is required")
	case deps.Verifier == nil:
		return nil, errors.New("httpapi: token verifier is required")
	case deps.Query == nil || deps.Activity == nil:
		return nil, errors.New("httpapi: activity services are required")
	case deps.Routes == nil:
		return nil, errors.New("httpapi: route policy is required")
	}
	if deps.DevTokenTTL <= 0 {
		deps.DevTokenTTL = 8 * time.Hour
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	proxies, err := ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	a := &API{
		router:  mux.NewRouter(),
		deps:    deps,
		opts:    opts,
		proxies: proxies,
		log:     obs.Logger().WithField("component", "httpapi"),
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	r := a.router
	r.Use(func(next http.Handler) http.Handler { return obs.Instrument(next, routeLabel) })
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)
	if a.deps.DevTokens != nil {
		r.HandleFunc("/auth/dev-token", a.handleDevToken).Methods(http.MethodPost)
	}

	authed := r.NewRoute().Subrouter()
	authed.Use(a.authenticate)

	admins := RequireRoles(a.deps.Roles, auth.RoleAdmin, auth.RoleSuperAdmin)
	superAdmins := RequireRoles(a.deps.Roles, auth.RoleSuperAdmin)

	authed.HandleFunc("/role", a.handleRoles).Methods(http.MethodGet)
	authed.HandleFunc("/organizations", a.handleListOrganizations).Methods(http.MethodGet)
	authed.HandleFunc("/organizations/active", a.handleGetActiveOrganization).Methods(http.MethodGet)
	authed.HandleFunc("/organizations/active", a.handleSetActiveOrganization).Methods(http.MethodPut)
	authed.Handle("/users/{id:[0-9]+}/roles", admins(http.HandlerFunc(a.handleAssignRole))).Methods(http.MethodPost)
	authed.Handle("/users/{id:[0-9]+}/roles", superAdmins(http.HandlerFunc(a.handleRevokeRole))).Methods(http.MethodDelete)
	authed.Handle("/activity", admins(http.HandlerFunc(a.handleListActivity))).Methods(http.MethodGet)
	authed.Handle("/activity/stream", admins(http.HandlerFunc(a.handleActivityStream))).Methods(http.MethodGet)
	authed.Handle("/activity/export", superAdmins(http.HandlerFunc(a.handleExportActivity))).Methods(http.MethodGet)
	authed.HandleFunc("/routes", a.handleRoutePolicy).Methods(http.MethodGet)
	authed.HandleFunc("/routes/check", a.handleRouteCheck).Methods(http.MethodGet)
}

// Handler returns the router wrapped in the shared middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	if a.opts.RateLimitRPS > 0 {
		burst := a.opts.RateLimitBurst
		if burst <= 0 {
			burst = int(a.opts.RateLimitRPS) + 1
		}
		h = RateLimit(h, burst, a.opts.RateLimitRPS, a.proxies)
	}
	h = CORS(a.opts.CORSOrigins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "trackure-api",
		"version": a.deps.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.deps.Ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the {success:false, error} envelope the frontend expects.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"success": false,
		"error":   msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleServiceError maps service sentinels to statuses. Unexpected errors are
// logged and reported as 500 with the error text.
func (a *API) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, activity.ErrInvalidPage):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidOrganization):
		writeError(w, r, http.StatusUnprocessableEntity, "InvalidOrganization")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "Unauthorized")
	default:
		a.log.WithError(err).WithFields(logrus.Fields{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		}).Error("request failed")
		writeError(w, r, http.StatusInternalServerError, err.Error())
	}
}

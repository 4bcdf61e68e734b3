package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"moss.dev/internal/oauth"
	"moss.dev/internal/obs"
	"moss.dev/internal/rbac"
)

// ReadyProbe reports readiness (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the authorization server and the permission
// service.
type API struct {
	mux        *http.ServeMux
	oauth      *oauth.Server
	rbac       *rbac.Service
	readyProbe ReadyProbe
	version    string
}

// New wires up all routes.
func New(oauthServer *oauth.Server, rbacService *rbac.Service, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		oauth:      oauthServer,
		rbac:       rbacService,
		readyProbe: rp,
		version:    version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// OAuth endpoints
	a.mux.HandleFunc("/oauth/authorize", a.handleAuthorize)
	a.mux.HandleFunc("/oauth/token", a.handleToken)
	a.mux.HandleFunc("/oauth/revoke", a.handleRevoke)

	// RBAC administration and access checks
	a.mux.HandleFunc("/v1/rbac/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/rbac/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/rbac/assignments", a.handleAssignments)
	a.mux.HandleFunc("/v1/rbac/assignments/", a.handleAssignmentResource)
	a.mux.HandleFunc("/v1/rbac/groups/", a.handleGroupResource)
	a.mux.HandleFunc("/v1/access/check", a.handleAccessCheck)
	a.mux.HandleFunc("/v1/admin/access", a.handleAdminAccess)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, 50, 25)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

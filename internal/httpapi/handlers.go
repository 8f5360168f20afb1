package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/netip"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"distributor.app/internal/auth"
	"distributor.app/internal/microinvest"
	"distributor.app/internal/obs"
)

// ReadyCheck - проверка готовности одной зависимости (БД, redis).
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Catalog is the read side of Microinvest served over HTTP.
type Catalog interface {
	ListProducts(ctx context.Context, f microinvest.ProductFilter) ([]microinvest.Product, error)
	ListOperations(ctx context.Context, f microinvest.OperationFilter) ([]microinvest.Operation, error)
	GetOperation(ctx context.Context, id int64, viewer auth.PrincipalWithMapping) (microinvest.Operation, error)
	ListPartners(ctx context.Context, f microinvest.PartnerFilter) ([]microinvest.Partner, error)
	Dashboard(ctx context.Context, q microinvest.DashboardQuery) (microinvest.Dashboard, error)
}

// Deps wires the API to the auth core. Catalog may be nil when Microinvest
// is not configured.
type Deps struct {
	Auth     *auth.Service
	Sessions *auth.SessionResolver
	Mapper   *auth.IdentityMapper
	Accounts *auth.AccountService
	Catalog  Catalog
	Checks   []ReadyCheck
	Version  string

	LoginRatePerSec int
	LoginRateBurst  int
	// TrustedProxies may set the client address via X-Forwarded-For.
	TrustedProxies []netip.Prefix
}

// API - HTTP слой.
type API struct {
	router   *mux.Router
	auth     *auth.Service
	sessions *auth.SessionResolver
	mapper   *auth.IdentityMapper
	accounts *auth.AccountService
	catalog  Catalog
	checks   []ReadyCheck
	version  string
	trusted  []netip.Prefix
	log      *logrus.Logger
}

func New(d Deps) *API {
	a := &API{
		router:   mux.NewRouter(),
		auth:     d.Auth,
		sessions: d.Sessions,
		mapper:   d.Mapper,
		accounts: d.Accounts,
		catalog:  d.Catalog,
		checks:   d.Checks,
		version:  d.Version,
		trusted:  d.TrustedProxies,
		log:      obs.Logger(),
	}
	perSec, burst := d.LoginRatePerSec, d.LoginRateBurst
	if perSec <= 0 {
		perSec = 5
	}
	if burst <= 0 {
		burst = 10
	}
	a.routes(newIPLimiter(perSec, burst))
	return a
}

func (a *API) routes(loginLimiter *ipLimiter) {
	r := a.router
	r.Use(obs.Instrument)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, auth.KindNotFound, "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, auth.KindInvalidInput, "method not allowed")
	})

	// health/ready/metrics
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	r.Handle("/auth/login", loginLimiter.wrap(http.HandlerFunc(a.handleLoginForm))).Methods(http.MethodPost)
	r.Handle("/auth/login/json", loginLimiter.wrap(http.HandlerFunc(a.handleLoginJSON))).Methods(http.MethodPost)
	r.Handle("/auth/me", a.withAuth(a.handleMe)).Methods(http.MethodGet)
	r.Handle("/auth/logout", withBearer(http.HandlerFunc(a.handleLogout))).Methods(http.MethodPost)

	r.Handle("/users/register", a.withAuth(a.handleRegister)).Methods(http.MethodPost)
	r.Handle("/users", a.withAuth(a.handleListUsers)).Methods(http.MethodGet)
	r.Handle("/users/{id:[0-9]+}", a.withAuth(a.handleGetUser)).Methods(http.MethodGet)
	r.Handle("/users/{id:[0-9]+}", a.withAuth(a.handleUpdateUser)).Methods(http.MethodPut)
	r.Handle("/users/{id:[0-9]+}", a.withAuth(a.handleDeleteUser)).Methods(http.MethodDelete)
	r.Handle("/roles", a.withAuth(a.handleCreateRole)).Methods(http.MethodPost)
	r.Handle("/roles", a.withAuth(a.handleListRoles)).Methods(http.MethodGet)

	r.Handle("/microinvest/users/map", a.withAuth(a.handleCreateMapping)).Methods(http.MethodPost)
	r.Handle("/microinvest/users", a.withAuth(a.handleListMappings)).Methods(http.MethodGet)
	r.Handle("/microinvest/users/{mapping_id:[0-9]+}", a.withAuth(a.handleGetMapping)).Methods(http.MethodGet)
	r.Handle("/microinvest/users/{mapping_id:[0-9]+}", a.withAuth(a.handleDeleteMapping)).Methods(http.MethodDelete)
	r.Handle("/microinvest/products", a.withAuth(a.handleProducts)).Methods(http.MethodGet)
	r.Handle("/microinvest/operations", a.withAuth(a.handleOperations)).Methods(http.MethodGet)
	r.Handle("/microinvest/operations/{id:[0-9]+}", a.withAuth(a.handleOperation)).Methods(http.MethodGet)
	r.Handle("/microinvest/partners", a.withAuth(a.handlePartners)).Methods(http.MethodGet)
	r.Handle("/microinvest/dashboard", a.withAuth(a.handleDashboard)).Methods(http.MethodGet)
}

// Handler returns the router wrapped with the request-scoped middleware.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RealIP(h, a.trusted)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "distributor-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, p := range a.checks {
		if p.Check == nil {
			continue
		}
		if err := p.Check(ctx); err != nil {
			a.log.WithError(err).WithField("check", p.Name).Warn("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"check":  p.Name,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type messageResponse struct {
	Message string `json:"message"`
}

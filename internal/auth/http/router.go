package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/transitra/transitra/internal/auth/service"
	"github.com/transitra/transitra/internal/auth/store"
	"github.com/transitra/transitra/pkg/httpx"
	"github.com/transitra/transitra/pkg/slogx"

	_ "github.com/transitra/transitra/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store          store.Store
	AuthService    *service.AuthService
	SessionService *service.SessionService
	MFAService     *service.MFAService

	// DevBypass substitutes a fixed development identity for every request.
	// Fixed at startup from configuration, never per request.
	DevBypass         bool
	DevBypassIdentity httpx.Identity

	MetricsGatherer prometheus.Gatherer
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSessions()
	r.registerMFA()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Transitra Authentication Service API
//	@version		0.1.0
//	@description	Authentication and session security for the contract transition platform:
//	@description	password and SSO logins, JWT access/refresh tokens, per-user session caps
//	@description	and TOTP step-up.
//
//	@contact.name				Transitra Platform Team
//	@contact.url				https://github.com/transitra/transitra
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authn builds the bearer middleware shared by every protected route.
func (r *Router) authn() httpx.Middleware {
	return httpx.AuthnMiddleware(serviceAuthenticator{Auth: r.AuthService}, httpx.AuthnConfig{
		Bypass:         r.DevBypass,
		BypassIdentity: r.DevBypassIdentity,
		OnAuthenticated: func(ctx context.Context, id httpx.Identity, ip, userAgent string) {
			r.AuthService.RecordLoginMetadata(ctx, id.ID, optional(ip), optional(userAgent))
		},
	})
}

func (r *Router) registerAuth() {
	loginHandler := &LoginHandler{AuthService: r.AuthService}
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	refreshHandler := &RefreshHandler{AuthService: r.AuthService}
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(refreshHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	logoutHandler := &LogoutHandler{AuthService: r.AuthService}
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(logoutHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	userInfoHandler := &UserInfoHandler{AuthService: r.AuthService}
	r.Mux.Handle("GET /v1/auth/userinfo",
		httpx.Chain(userInfoHandler,
			r.authn(),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{SessionService: r.SessionService}

	r.Mux.Handle("GET /v1/auth/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			r.authn(),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/auth/sessions/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			r.authn(),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}

	r.Mux.Handle("POST /v1/auth/mfa/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll),
			r.authn(),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	// Strict limit: activation codes are six digits and brute-forceable.
	r.Mux.Handle("POST /v1/auth/mfa/activate",
		httpx.Chain(http.HandlerFunc(h.HandleActivate),
			r.authn(),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/disable",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			r.authn(),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	if r.MetricsGatherer != nil {
		r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.MetricsGatherer, promhttp.HandlerOpts{}))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

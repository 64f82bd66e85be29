package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/transitra/transitra/pkg/slogx"
)

// Authenticator turns a bearer token into an Identity. Implementations must
// collapse every validation failure into a single generic error; the
// middleware never tells the client why a token was rejected.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// AuthnConfig configures the authn middleware.
type AuthnConfig struct {
	// Bypass substitutes BypassIdentity for every request without touching
	// the token engine. Selected once at startup from configuration and
	// never from request input; production configs must not enable it.
	Bypass         bool
	BypassIdentity Identity

	// OnAuthenticated is invoked asynchronously after a successful
	// authentication, with the client IP and user agent. Used to record
	// last-login metadata. Failures inside it must never affect the
	// request, so it runs on a detached context.
	OnAuthenticated func(ctx context.Context, id Identity, ip, userAgent string)
}

// AuthnMiddleware extracts a bearer token, authenticates it and attaches
// the resulting identity to the request context. Tokens are accepted from
// the Authorization header or, for transports that cannot set headers, an
// access_token query parameter.
func AuthnMiddleware(a Authenticator, cfg AuthnConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			if cfg.Bypass {
				ctx = ContextWithIdentity(ctx, cfg.BypassIdentity)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token := extractBearer(r)
			if token == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			id, err := a.Authenticate(ctx, token)
			if err != nil {
				// The specific failure reason stays in the server log.
				log.Warn("token authentication failed", "err", err)
				WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			if cfg.OnAuthenticated != nil {
				ip := ClientIP(r)
				ua := r.UserAgent()
				detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				go func() {
					defer cancel()
					cfg.OnAuthenticated(detached, id, ip, ua)
				}()
			}

			ctx = ContextWithIdentity(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearer(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	}
	// Fallback for streaming transports that cannot set headers.
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

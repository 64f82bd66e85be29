package httpx

import "net/http"

// RequireAnyRole rejects with 403 unless the authenticated identity holds
// at least one of the required roles. The required roles are listed in the
// response body; role names are not sensitive.
func RequireAnyRole(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			for _, role := range required {
				if id.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}

			WriteJSON(w, http.StatusForbidden, ErrorResponse{
				Error:            "forbidden",
				ErrorDescription: "insufficient role",
				RequiredRoles:    required,
			})
		})
	}
}

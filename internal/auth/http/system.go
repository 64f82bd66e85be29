package http

import (
	"net/http"
	"time"

	"github.com/transitra/transitra/internal/auth/store"
	"github.com/transitra/transitra/pkg/httpx"
)

// HealthResponse is the payload for the health endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// LivezHandler godoc
//
//	@Summary		Liveness probe
//	@Description	Returns 200 whenever the process is up, with uptime and build version.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Returns 200 when the service can reach its database, 503 otherwise.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		}
		if err := st.Ping(r.Context()); err != nil {
			response.Status = "unavailable"
			httpx.WriteJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, response)
	}
}

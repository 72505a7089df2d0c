package api

import (
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// stats handles GET /v1/stats.
func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	s, err := a.eng.Stats(r.Context())
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// healthz returns 200 when the store answers a ping and 503 otherwise.
func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Store: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

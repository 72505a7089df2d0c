package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/queuectl/job"
)

type requeueResponse struct {
	ID    string    `json:"id,omitempty"`
	State job.State `json:"state,omitempty"`
	Count int       `json:"count"`
}

// listDLQ handles GET /v1/dlq.
func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, err := a.eng.DeadLetters(r.Context(), limit, offset)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// retryDLQ handles POST /v1/dlq/{jobID}/retry.
func (a *API) retryDLQ(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := a.eng.Requeue(r.Context(), jobID); err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requeueResponse{ID: jobID, State: job.StatePending, Count: 1})
}

// retryAllDLQ handles POST /v1/dlq/retry.
func (a *API) retryAllDLQ(w http.ResponseWriter, r *http.Request) {
	n, err := a.eng.RequeueAllDead(r.Context())
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requeueResponse{Count: n})
}

package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/queuectl/job"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// createJob handles POST /v1/jobs.
func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	j, err := a.eng.EnqueueJSON(r.Context(), body)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

// listJobs handles GET /v1/jobs?state=&limit=&offset=.
func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := job.ListOpts{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("state"); raw != "" {
		state, ok := job.ParseState(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", raw))
			return
		}
		opts.State = state
	}

	jobs, err := a.eng.List(r.Context(), opts)
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// getJob handles GET /v1/jobs/{jobID}.
func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := a.eng.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// pagination parses limit and offset, applying the default and maximum
// page size.
func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = defaultListLimit
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("invalid limit %q", raw)
		}
		limit = min(limit, maxListLimit)
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", raw)
		}
	}
	return limit, offset, nil
}

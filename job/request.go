package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/queuectl"
	"github.com/xraph/queuectl/id"
)

// Request is the enqueue payload submitted by callers.
type Request struct {
	// ID is optional; one is generated when empty.
	ID string `json:"id,omitempty"`
	// Command is required and handed verbatim to the executor.
	Command string `json:"command"`
	// MaxRetries is optional; nil means the configured default.
	MaxRetries *int `json:"max_retries,omitempty"`
}

// ParseRequest decodes a JSON enqueue payload and validates it.
func ParseRequest(data []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(data)) == 0 {
		return req, fmt.Errorf("%w: empty payload", queuectl.ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %v", queuectl.ErrInvalidPayload, err)
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// Validate checks the request without touching any store.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Command) == "" {
		return fmt.Errorf("%w: command is required", queuectl.ErrInvalidPayload)
	}
	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0, got %d", queuectl.ErrInvalidPayload, *r.MaxRetries)
	}
	return nil
}

// NewJob validates req and builds the pending job it describes.
func NewJob(req Request, now time.Time, opts ...Option) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	jobID := strings.TrimSpace(req.ID)
	if jobID == "" {
		if o.NewID != nil {
			jobID = o.NewID()
		} else {
			jobID = id.NewJobID()
		}
	}

	maxRetries := o.DefaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	now = now.UTC()
	return &Job{
		ID:         jobID,
		Command:    req.Command,
		State:      StatePending,
		Attempts:   0,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
		NextRunAt:  0,
	}, nil
}

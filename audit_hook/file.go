package audithook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var _ Recorder = (*FileRecorder)(nil)

// FileRecorder appends events to a file as JSON lines. It is safe for
// concurrent use; every worker goroutine shares one recorder.
type FileRecorder struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// OpenFile opens path for appending, creating it and its directory.
func OpenFile(path string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audithook: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audithook: open %s: %w", path, err)
	}
	return &FileRecorder{f: f, enc: json.NewEncoder(f)}, nil
}

// Record writes evt as one line.
func (r *FileRecorder) Record(_ context.Context, evt *AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(evt)
}

// Close flushes and closes the file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.f.Sync(); err != nil {
		_ = r.f.Close()
		return err
	}
	return r.f.Close()
}

package redis

import "github.com/xraph/queuectl/job"

// Redis key naming conventions for queuectl data. All keys share the
// store's prefix, "queuectl:" by default.

const defaultKeyPrefix = "queuectl:"

// jobKeyPrefix is the prefix of every job Hash: {prefix}job:{id}.
func (s *Store) jobKeyPrefix() string { return s.prefix + "job:" }

// jobKey returns the Hash key for a job.
func (s *Store) jobKey(jobID string) string { return s.jobKeyPrefix() + jobID }

// allKey is the Sorted Set of every job ID, scored by creation time.
func (s *Store) allKey() string { return s.prefix + "jobs" }

// stateKey returns the Sorted Set of job IDs in state st.
func (s *Store) stateKey(st job.State) string { return s.prefix + "state:" + string(st) }

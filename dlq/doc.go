// Package dlq is the dead-letter view over the job table: the jobs in
// state dead, which exhausted their retries. Dead jobs stay in the table
// and keep their last attempt count until they are requeued.
//
// Requeueing moves a dead job back to pending with zero attempts and
// NextRunAt 0, so it is claimable immediately. Requeueing a job that does
// not exist or is not dead changes nothing and returns an error.
//
// The dead-letter view is exposed via the HTTP admin API:
//   - GET  /v1/dlq            list dead jobs
//   - POST /v1/dlq/{id}/retry requeue one dead job
package dlq

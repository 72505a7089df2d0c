// Package job defines the job entity, its state machine, the store
// contract, the claim protocol and the outcome handler.
//
// # Job Entity
//
// A [Job] is an opaque command plus retry metadata. It progresses through
// a small state machine:
//
//	pending → processing → completed
//	pending → processing → pending (retry after backoff) → processing → ...
//	pending → processing → dead
//	dead → pending (administrative requeue only)
//
// completed and dead are terminal: nothing automated moves a job out of
// them. A pending job with NextRunAt in the future is not claimable.
//
// # Claim Protocol
//
// [ClaimNext] selects the earliest-created ready job and moves it to
// processing with a conditional update that only matches while the job is
// still pending. A lost race excludes that job and selects again; it is
// never reported as an error.
//
// # Outcome Handler
//
// [Decide] is a pure function from (job, result code, now) to the
// [Transition] the worker records with [Store.ApplyOutcome].
package job

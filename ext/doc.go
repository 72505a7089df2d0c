// Package ext defines the extension system for queuectl.
//
// Extensions are notified of job lifecycle events and can react to them,
// for example by recording metrics or writing an audit trail. Each hook is
// a separate interface so extensions opt in only to the events they care
// about.
//
// # Implementing an Extension
//
//	type Printer struct{}
//
//	func (Printer) Name() string { return "printer" }
//
//	func (Printer) OnJobDead(ctx context.Context, j *job.Job, code int) error {
//	    log.Printf("job %s is dead (exit %d)", j.ID, code)
//	    return nil
//	}
//
// # Hooks
//
//   - [JobEnqueued]: job was persisted as pending
//   - [JobClaimed]: a worker won the claim on the job
//   - [JobCompleted]: the command exited with code 0
//   - [JobRetrying]: the command failed and a retry is scheduled
//   - [JobDead]: the job exhausted its retries
//   - [JobRequeued]: a dead job was moved back to pending
//   - [JobReaped]: a stuck processing job was returned to pending
//   - [Shutdown]: the worker pool has drained
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never affect job state.
package ext

package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobEnqueued  = "job.enqueued"
	ActionJobClaimed   = "job.claimed"
	ActionJobCompleted = "job.completed"
	ActionJobRetrying  = "job.retrying"
	ActionJobDead      = "job.dead"
	ActionJobRequeued  = "job.requeued"
	ActionJobReaped    = "job.reaped"
)

// CategoryJob is the category of every event this extension emits.
const CategoryJob = "queuectl.job"

// ResourceJob is the Resource field of every event.
const ResourceJob = "job"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobClaimed,
		ActionJobCompleted,
		ActionJobRetrying,
		ActionJobDead,
		ActionJobRequeued,
		ActionJobReaped,
	}
}

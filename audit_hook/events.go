package audithook

// Audit event actions. Each constant corresponds to one ext hook and
// becomes the Action field of the audit event.
const (
	ActionJobPushed       = "job.pushed"
	ActionJobStarted      = "job.started"
	ActionJobCompleted    = "job.completed"
	ActionJobFailed       = "job.failed"
	ActionProcessStartup  = "process.startup"
	ActionProcessQuiet    = "process.quiet"
	ActionProcessShutdown = "process.shutdown"
)

// Audit event categories group related actions.
const (
	CategoryJob     = "faktory.job"
	CategoryProcess = "faktory.process"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob     = "job"
	ResourceProcess = "worker_process"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobPushed,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobFailed,
		ActionProcessStartup,
		ActionProcessQuiet,
		ActionProcessShutdown,
	}
}

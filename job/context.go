package job

import "context"

type ctxKey int

const (
	jobKey ctxKey = iota
)

// WithJob returns a context carrying the running job.
func WithJob(ctx context.Context, j *Job) context.Context {
	return context.WithValue(ctx, jobKey, j)
}

// FromContext returns the running job, or nil outside a job.
func FromContext(ctx context.Context) *Job {
	j, _ := ctx.Value(jobKey).(*Job)
	return j
}

// JIDFrom returns the running job's JID, or "".
func JIDFrom(ctx context.Context) string {
	if j := FromContext(ctx); j != nil {
		return j.JID
	}
	return ""
}

// BIDFrom returns the batch ID of the running job, or "".
func BIDFrom(ctx context.Context) string {
	if j := FromContext(ctx); j != nil {
		return j.BID()
	}
	return ""
}

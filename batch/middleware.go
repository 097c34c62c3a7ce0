package batch

import (
	"context"
	"maps"

	"github.com/xraph/faktory/job"
	"github.com/xraph/faktory/middleware"
)

// ClientMiddleware tags jobs pushed inside Jobs with the batch ID.
type ClientMiddleware struct{}

// Push copies the job's custom map and sets its bid.
func (ClientMiddleware) Push(ctx context.Context, j *job.Job, next middleware.PushFunc) (string, error) {
	if b := FromContext(ctx); b != nil {
		if bid := b.BID(); bid != "" {
			j.Custom = maps.Clone(j.Custom)
			j.SetCustom(job.CustomBID, bid)
		}
	}
	return next(ctx)
}

// WorkerMiddleware gives a running job its batch identity and makes
// sure pushes from the job do not join a batch it only inherited from
// the process context.
type WorkerMiddleware struct{}

// Perform sets the job's identity and runs it.
func (WorkerMiddleware) Perform(ctx context.Context, inst job.Performer, j *job.Job, next middleware.Handler) error {
	if idf, ok := inst.(job.Identifiable); ok {
		idf.SetIdentity(j.JID, j.BID())
	}
	if FromContext(ctx) != nil {
		ctx = WithBatch(ctx, nil)
	}
	return next(ctx)
}

var (
	_ middleware.ClientInterceptor = ClientMiddleware{}
	_ middleware.WorkerInterceptor = WorkerMiddleware{}
)

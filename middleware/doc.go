// Package middleware provides ordered, composable interceptor chains for
// pushing and performing jobs.
//
// There are two lanes. A [ClientInterceptor] wraps every PUSH, and a
// [WorkerInterceptor] wraps every job execution. Each lane is a [Chain]
// whose entries are keyed by the interceptor's concrete Go type, so an
// entry can be moved, removed or positioned relative to another by type:
//
//	eng.WorkerMiddleware().Add(func() middleware.WorkerInterceptor {
//	    return middleware.NewLogging(logger)
//	})
//	eng.WorkerMiddleware().InsertBefore((*middleware.Logging)(nil), func() middleware.WorkerInterceptor {
//	    return &Audit{}
//	})
//	eng.WorkerMiddleware().Remove((*middleware.Metrics)(nil))
//
// Interceptors run in chain order: the first entry is the outermost
// wrapper. Each invocation builds fresh interceptors from the entries'
// factories.
//
// # Built-in Interceptors
//
//   - [Logging] logs job start, completion and failure with elapsed time
//   - [Recover] converts panics into a [*PanicError]
//   - [Timeout] derives a context deadline from the job's reserve_for
//   - [Tracing] wraps execution in an OpenTelemetry span
//   - [Metrics] records per-job duration and outcome counters
//   - [PushTracing] wraps PUSH in an OpenTelemetry span
//
// # Writing Custom Interceptors
//
//	type Audit struct{}
//
//	func (Audit) Perform(ctx context.Context, inst job.Performer, j *job.Job, next middleware.Handler) error {
//	    // pre-processing
//	    err := next(ctx)
//	    // post-processing
//	    return err
//	}
//
// An interceptor that returns without calling next stops the rest of the
// chain and the real operation: the push is not sent, or the job body
// does not run.
package middleware

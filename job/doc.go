// Package job defines the job wire type, typed definitions, the job type
// registry and the push API.
//
// # Job
//
// A [Job] is the JSON document the server stores. It always carries a jid
// and a jobtype; everything else has a server-side default:
//
//   - Queue: which queue the job belongs to (default: "default")
//   - At: RFC3339 time before which the job is not fetched
//   - Retry: retry budget (nil = server default, 0 = no retries)
//   - ReserveFor: seconds the server waits for ACK/FAIL before requeueing
//   - Custom: free-form metadata; batches store their bid here
//
// # Defining a Job
//
// Any value with a Perform method is a [Performer]. Register a factory so
// each execution gets a fresh instance:
//
//	reg.Register("SendEmail", func() job.Performer { return &SendEmail{} },
//	    job.WithQueue("mail"),
//	)
//
// Or use [Definition] with a typed handler. The first argument is decoded
// into the payload type before the handler runs:
//
//	var SendEmail = job.NewDefinition("SendEmail",
//	    func(ctx context.Context, input EmailInput) error {
//	        return mailer.Send(input.To, input.Subject, input.Body)
//	    },
//	)
//	job.RegisterDefinition(reg, SendEmail)
//
// # Pushing
//
// [Setter] merges registry defaults, per-call options and the job itself,
// in increasing order of precedence, and hands the result to a [Pusher]:
//
//	eng.Set("SendEmail", job.WithQueue("critical")).PerformIn(ctx, time.Hour, input)
package job

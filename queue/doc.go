// Package queue limits how fast and how widely this process consumes
// individual queues.
//
// A [Config] caps a queue's local concurrency and its sustained fetch
// rate with a token bucket (golang.org/x/time/rate):
//
//	queue.Config{
//	    Name:           "email",
//	    MaxConcurrency: 5,  // at most 5 email jobs running here
//	    RateLimit:      10, // at most 10 jobs/s fetched from email
//	    RateBurst:      20,
//	}
//
// The Fetcher asks the [Limiter] which queues may be polled, drops the
// rest from the FETCH command, and holds a slot for each fetched job
// until it is acknowledged or failed. Limits are local to one process;
// the server knows nothing about them.
//
// Queues without a Config have no limits beyond the process concurrency.
package queue

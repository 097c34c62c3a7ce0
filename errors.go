package faktory

import "errors"

var (
	// Configuration errors.
	ErrInvalidConcurrency = errors.New("faktory: concurrency must be at least 1")
	ErrNoQueues           = errors.New("faktory: at least one queue is required")
	ErrInvalidWeight      = errors.New("faktory: queue weight must be at least 1")
	ErrPoolTooSmall       = errors.New("faktory: connection pool is smaller than concurrency requires")
	ErrPasswordRequired   = errors.New("faktory: server requires a password")
	ErrInvalidProvider    = errors.New("faktory: FAKTORY_PROVIDER must name an environment variable, not contain a URL")

	// Connection errors.
	ErrPoolTimeout = errors.New("faktory: timed out waiting for a pooled connection")
	ErrPoolClosed  = errors.New("faktory: connection pool closed")

	// Job errors.
	ErrMissingJID     = errors.New("faktory: job is missing a jid")
	ErrMissingJobType = errors.New("faktory: job is missing a jobtype")

	// Batch errors.
	ErrCallbackRequired = errors.New("faktory: batch requires a success or complete callback")
	ErrBatchImmutable   = errors.New("faktory: batch cannot be modified once created")

	// Tracking errors.
	ErrReserveInPast  = errors.New("faktory: reserve_until must be in the future")
	ErrReserveTooFar  = errors.New("faktory: reserve_until must be within 24 hours")
	ErrInvalidPercent = errors.New("faktory: percent must be between 0 and 100")
	ErrNoCurrentJob   = errors.New("faktory: no job is running in this context")

	// ErrShutdown is the cause recorded when a job is forcibly aborted at
	// the end of the shutdown deadline. It is reported to the server as a
	// failure but never routed to error handlers.
	ErrShutdown = errors.New("faktory: job aborted by shutdown")
)

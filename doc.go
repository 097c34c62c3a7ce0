// Package faktory provides a client and worker runtime for the Faktory
// background job server.
//
// The runtime is a library first. Build an engine from a Config, register
// job types as ordinary Go values, and run a Launcher to fetch and execute
// jobs from the server.
//
// # Quick Start
//
//	cfg, err := faktory.NewConfig(
//	    faktory.WithConcurrency(20),
//	    faktory.WithQueues("critical", "default"),
//	)
//	eng, err := engine.Build(cfg, engine.WithLogger(logger))
//	eng.Register("SendEmail", func() job.Performer { return &SendEmail{} })
//	err = eng.Run(ctx)
//
// # Architecture
//
// The protocol package speaks the line-oriented wire format. The client
// package owns connections, the handshake and the retry-once policy, and
// pools them for concurrent use. The worker package runs Processors under
// a self-healing Manager, and the launcher package drives the Manager with
// a heartbeat. Middleware chains wrap both pushing and performing, and
// batches ride in the context.Context of the code that builds them.
//
// Job and worker IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package faktory

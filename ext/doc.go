// Package ext defines lifecycle events, error handlers and the extension
// system.
//
// # Lifecycle Events
//
// A process moves through three events: [Startup] when the Launcher
// starts, [Quiet] when it stops fetching, and [Shutdown] when it begins
// stopping. Callbacks run once, in registration order for startup and in
// reverse order for quiet and shutdown. An error from one callback is
// reported to the error handlers and never stops the others.
//
//	reg.On(ext.Startup, func(ctx context.Context) error { return db.Ping(ctx) })
//	reg.On(ext.Shutdown, func(ctx context.Context) error { return db.Close() })
//
// # Error Handlers
//
// Errors that escape a job, a hook or a heartbeat go to every registered
// handler. A logging handler is always installed first.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", j.JID, elapsed)
//	    return nil
//	}
//
// # Job Hooks
//
//   - [JobPushed] job was accepted by the server
//   - [JobStarted] a Processor began executing the job
//   - [JobCompleted] job finished successfully and was acknowledged
//   - [JobFailed] job failed and was reported to the server
//
// # Process Hooks
//
//   - [StartupHook], [QuietHook], [ShutdownHook] are registered as
//     lifecycle callbacks for the matching event
package ext

// Package audithook is an extension that bridges job and worker process
// lifecycle events to an audit trail backend.
//
// Every hook emits a structured audit event through the [Recorder]
// interface with a severity (info for normal operations, warning for a
// forced quiet or shutdown, critical for failed jobs) and metadata such
// as jobtype, queue, elapsed time and error.
//
//	eng, err := engine.Build(cfg, engine.WithExtension(
//	    audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	        return auditLog.Write(ctx, evt)
//	    })),
//	))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(audithook.ActionJobFailed, audithook.ActionProcessShutdown),
//	)
package audithook

// Package engine is the application context of a Faktory client or
// worker process. It owns the connection pool, the job registry, both
// middleware chains, the lifecycle hooks and error handlers, and the
// busy counter, so nothing lives in package-level state and several
// engines can coexist in one process.
//
// # Building an Engine
//
//	cfg, err := faktory.NewConfig(
//	    faktory.WithConcurrency(10),
//	    faktory.WithQueues("critical", "default"),
//	)
//
//	eng, err := engine.Build(cfg,
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	)
//	defer eng.Close()
//
// # Registering Work
//
//	eng.RegisterFunc("SendEmail", func(ctx context.Context, args ...any) error {
//	    return send(args[0].(string))
//	}, job.WithQueue("mail"), job.WithRetry(5))
//
//	engine.Register(eng, job.NewDefinition("Resize", resize))
//
// # Pushing Jobs
//
//	jid, err := eng.Perform(ctx, "SendEmail", "user@example.com")
//	jid, err = eng.Set("SendEmail").Set(job.WithQueue("critical")).PerformIn(ctx, time.Minute, addr)
//
// Options resolve per field: the job itself wins over Set, which wins
// over the defaults given at registration.
//
// # Running a Worker
//
//	err := eng.Run(ctx) // returns after ctx is done and jobs have drained
//
// # Options
//
//   - [WithLogger] set the logger
//   - [WithExtension] register an extension
//   - [WithClientOptions] add connection options such as TLS or a password
//   - [WithTracerProvider], [WithMeterProvider] set OpenTelemetry providers
//   - [WithIdleBackoff], [WithDownBackoff] set Processor sleep strategies
//   - [WithQueueConfig] cap per-queue concurrency and fetch rate
//   - [WithReloader], [WithJobLogger] set dispatch hooks
package engine

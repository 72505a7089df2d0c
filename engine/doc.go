// Package engine wires the queuectl subsystems together and provides the
// application-level API: enqueue, query, dead-letter administration, and
// worker pool lifecycle.
//
// The engine package sits above the job, store, worker and dlq packages
// and below the CLI and HTTP layers, which only talk to an *Engine.
//
// # Building an Engine
//
//	st, _ := sqlite.New(ctx, "queue.db")
//	eng, err := engine.New(st,
//	    engine.WithConfig(cfg),
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	)
//
// # Enqueuing Jobs
//
//	j, err := eng.Enqueue(ctx, job.Request{Command: "echo hi"})
//	j, err = eng.EnqueueJSON(ctx, []byte(`{"id":"job1","command":"sleep 2","max_retries":2}`))
//
// # Running Workers
//
//	if err := eng.Start(ctx); err != nil { ... }
//	<-ctx.Done()
//	_ = eng.Stop(context.Background()) // waits for running commands
//
// # Options
//
//   - [WithConfig]: pool size, poll interval, retry and reaper settings
//   - [WithExecutor]: replace the shell executor
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the execution chain
//   - [WithBackoff]: override the exponential retry strategy
//   - [WithTracerProvider] and [WithMeterProvider]: OpenTelemetry providers
package engine

// Package queuectl provides a single-node background job engine for shell
// commands. Jobs live in a persistent table; a pool of workers claims them
// with a conditional update, runs them, and retries failures with
// exponential backoff until they complete or are moved to the dead state.
//
// # Quick Start
//
//	st := memory.New()
//	eng, err := engine.New(st,
//	    engine.WithConfig(queuectl.DefaultConfig()),
//	    engine.WithExecutor(executor.NewShell()),
//	)
//	if err != nil { ... }
//	_, _ = eng.Enqueue(ctx, job.Request{Command: "echo hello"})
//	_ = eng.Start(ctx)
//	defer eng.Stop(ctx)
//
// # Architecture
//
// The job package holds the data model, the store contract, the claim
// protocol and the outcome handler. Store backends (memory, sqlite,
// postgres, redis, mongo) implement the contract with single-row
// conditional updates; no in-process lock coordinates workers. The worker
// package runs the claim/execute/record loop, and the engine package wires
// everything together.
//
// Generated job IDs use TypeID: "job_" followed by a K-sortable suffix.
package queuectl

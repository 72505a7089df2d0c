// Package worker runs claimed jobs. A Processor executes one job through
// the middleware chain and records its outcome, a Worker loops claiming
// and processing jobs one at a time, and a Pool runs N workers under a
// shared stop signal.
//
// Stopping a pool is cooperative: workers finish the command they are
// running, record its outcome, and then exit. In-flight commands are
// never killed.
package worker

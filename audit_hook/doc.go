// Package audithook is a queuectl extension that turns job lifecycle events
// into audit records.
//
// Every hook emits an [AuditEvent] through the [Recorder] interface with a
// severity (info for normal progress, warning for retries and reaps,
// critical for dead jobs) and metadata such as the command, attempt count
// and exit code.
//
// # Writing to a file
//
//	rec, err := audithook.OpenFile("/var/log/queuectl/audit.jsonl")
//	if err != nil { ... }
//	defer rec.Close()
//	eng, err := engine.New(st, engine.WithExtension(audithook.New(rec)))
//
// # Selective filtering
//
//	audithook.New(rec,
//	    audithook.WithActions(
//	        audithook.ActionJobDead,
//	        audithook.ActionJobReaped,
//	    ),
//	)
package audithook

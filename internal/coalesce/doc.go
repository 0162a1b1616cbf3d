// Package coalesce collapses overlapping update triggers into at most one
// running job.
//
// A trigger that arrives while no job is running starts one immediately.
// Triggers that arrive while a job is running are never dropped and never
// queued: any number of them mark a single pending rerun, which starts
// after the current run finishes. Errors from the job end the run loop and
// are delivered to whoever started it.
package coalesce

// Package batch runs record-at-a-time sync jobs asynchronously and lets
// callers wait for them.
//
// A Job is created by Submit and processed on its own goroutine in blocks
// of the engine's block size. A job ends in exactly one terminal state:
//
//	running -> completed-success   every item's step returned nil
//	running -> completed-failure   at least one step failed, or the engine closed
//
// Jobs expose no completion callback to external observers, so callers use
// a Waiter, which polls the job state on an injectable Clock until the job
// terminates or a timeout elapses. Timing out is the waiter's verdict; the
// job itself keeps running.
package batch

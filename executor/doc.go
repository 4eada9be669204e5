// Package executor runs image requests: it waits for the request's
// lifecycle to become active, shares one pipeline run between concurrent
// identical requests and reports the outcome to the request's target.
//
// Cancellation is reference-counted. A caller that goes away detaches
// from the shared run; the run itself is cancelled only when no caller
// remains attached. Cancellation is an outcome of its own, reported
// through Target.OnCancel, never through OnError.
package executor

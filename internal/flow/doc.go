// Package flow resolves named flows and invokes them synchronously.
//
// A Registry maps well-known names such as "createAccountInAFlow" to Flow
// implementations. Callers Resolve a Handle, Initialise it, then use
// Invoke (or the InvokeCreate/InvokeQuery/InvokeDelete helpers) for
// request-response calls. Poll-driven flows also implement Scheduled, so
// their automatic triggering can be stopped and fired on demand.
//
// Error taxonomy:
//
//	CONFIGURATION   no flow of that name is registered
//	INITIALIZATION  the flow definition is malformed
//	FLOW_EXECUTION  the flow faulted while processing an event
//
// None of these are retried.
package flow

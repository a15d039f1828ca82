// Package syncapp is the bidirectional Account sync template.
//
// A Template wires two sandbox orgs and a batch engine to the named flows
// of a flow configuration. Poll flows (triggerSyncFromAFlow,
// triggerSyncFromBFlow) read records changed since their watermark; the
// push flow (triggerPushFlow) reads an outbound-message envelope. Both
// submit a sync job that applies each change to the other system with a
// last-modified-wins rule and suppresses echoes of the template's own
// writes.
package syncapp

// Package config loads the runtime properties of the sync template:
// page.size, polling.frequency (milliseconds), watermark.default.expression
// and the per-system org settings under systems.a and systems.b.
package config

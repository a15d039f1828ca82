// Package testutil provides deterministic clocks and identifier generators
// for tests and for the scenario harness.
package testutil

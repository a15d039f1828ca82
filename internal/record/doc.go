// Package record models CRM business objects as plain field maps.
//
// A Record is what callers build and submit (values of any scalar type).
// Fields is what an org hands back: every value rendered to its canonical
// string form, which is the form used for storage and for cross-system
// comparison.
//
// # Building records
//
// Builders are copy-on-write, so a base builder can be shared by several
// variants of the same logical record:
//
//	account := record.AnAccount().
//	    With("Name", "X-Account").
//	    With("Phone", "123456789")
//
//	justCreated := account.With("Description", "Old description")
//	updated := account.With("Description", "Some nice description")
//
// account.Build() still has no Description.
//
// # Comparing records
//
// Diff removes system-assigned identifiers (Id by default) and reports
// every field that is missing on one side or carries a different value.
package record

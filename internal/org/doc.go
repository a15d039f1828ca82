// Package org provides a SQLite-backed sandbox CRM org holding Account records.
//
// Each synchronised system (A and B) is one Org. The org assigns the
// system fields itself:
//   - Id: 18 characters, Account key prefix "001"
//   - CreatedDate / LastModifiedDate: from the org's Clock, TimeLayout format
//   - LastModifiedById: the user passed to the write call
//
// # Queries
//
// Query matches every criteria field exactly and returns the first match in
// insertion order. ChangedSince walks accounts modified after a watermark in
// (LastModifiedDate, Id) order using keyset pages, so a page size bounds
// memory per round trip but never truncates the result.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - single connection: ":memory:" sandboxes stay alive for the org's lifetime
package org

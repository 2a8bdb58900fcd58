// Package store provides SQLite-backed sheets for the product ledger.
//
// A sheet is a header-addressed table that behaves like a spreadsheet tab:
//   - Row 1 is the header, stored on the sheets table
//   - Data rows are numbered from 2 in insertion order
//   - Deleting a row shifts the rows below it up by one
//
// Every mutating call runs in one transaction. A batched cell update, an
// append or a move between sheets is either fully visible or not at all.
//
// # Database Configuration
//
// File databases use:
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Rows are removed with their sheet
//
// MemoryPath opens a private in-memory ledger that skips the WAL settings.
//
// Lock conflicts that outlive the busy timeout surface as *BusyError, which
// the retry wrapper treats as transient.
package store

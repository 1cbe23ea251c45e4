// Package ledger provides the local SQLite record of what this datasite
// did: one row per pass, per executed ring position and per lifecycle
// transition, plus a small key/value settings table.
//
// The ledger is private to one datasite and never synced. It is
// diagnostic: the synced tree remains the only source of truth for
// lifecycle state, and deleting the ledger loses history, not progress.
//
// # Ordering
//
// Every row carries a seq from a monotonic logical counter. Reads order by
// seq ASC, id ASC so history is stable regardless of wall-clock skew.
//
// # Database Configuration
//
//   - WAL mode
//   - synchronous=NORMAL
//   - 5-second busy timeout, since a scheduled pass may overlap a manual
//     history query
//   - Foreign key enforcement
//   - Single connection (SQLite has one writer)
package ledger

// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The store package splits its surface into small interfaces:
//
//   - AccountStore: Accounts and identity provider links
//   - TaskStore: Lists and tasks
//   - LinkStore: Stashed web links
//
// Store embeds all three. SQLiteStore implements Store in a single struct and
// MemoryStore provides the same semantics without a database.
//
// # Ownership
//
// Every list, task and link belongs to one account. Reads and writes take the
// owner id and treat records of other owners as missing (ErrNotFound), so a
// caller can never learn whether another account's id exists.
//
// Deleting a list removes the list and its tasks in one transaction.
//
// # SQLite Configuration
//
// Two drivers are supported:
//
//   - "sqlite": modernc.org/sqlite, pure Go (default)
//   - "sqlite3": github.com/mattn/go-sqlite3, requires cgo
//
// Each connection enables foreign keys, WAL and a busy timeout via the DSN.
//
// # Migrations
//
// Migrations live in internal/store/migrations/ and are embedded into the
// binary. They are applied with golang-migrate on every Open.
//
// # Testing
//
// Use NewMemoryStore() for unit tests in other packages. Use
// NewSQLiteStore(":memory:") for integration tests with real SQLite.
package store

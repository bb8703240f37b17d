// Package database opens the clipforge SQLite database and owns its schema.
//
// The connection is configured through modernc.org/sqlite DSN pragmas (WAL,
// busy timeout, foreign keys) and migrated with goose from SQL files embedded
// in the binary. The package also exposes the SQLITE_BUSY retry helpers and
// column conversion helpers shared by the queue and catalog stores.
package database

// Package storage provides bin.Store implementations.
//
// SQLiteStore is the durable backend. It can run on either the cgo driver
// (github.com/mattn/go-sqlite3, driver name "sqlite3") or the pure Go driver
// (modernc.org/sqlite, driver name "sqlite"); the schema and queries are
// identical. MemoryStore keeps everything in process and backs tests.
//
// Both backends close the quota race the same way: the "count < max" check
// and the increment happen in one atomic step (a conditional UPDATE for
// SQLite, a mutex section for memory).
package storage

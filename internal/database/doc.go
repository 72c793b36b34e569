// Package database provides SQLite-based run history for sbdl.
//
// The HistoryDB stores:
//   - Run summaries of past crawl and scrape invocations
//   - Soundboards that were resolved, with their manifest size
//   - Artifacts written to disk, with size and checksum
//
// The database is a single file (sbdl.db) in the XDG data directory,
// opened through the CGO-free modernc.org/sqlite driver in WAL mode.
// Whether a sound needs downloading is always decided by the filesystem,
// never by this database.
package database

// Package logfile owns the append-only CSV log that sits between ingestion and
// fan-out.
//
// Writer appends received lines in arrival order. Cursor tracks a byte offset
// into the same file and returns only the complete lines appended since the
// previous poll. TailQuery answers "last n readings" requests by reading the
// file directly, independent of any live cursor.
//
// Writer and readers use separate file handles and never coordinate beyond
// what the filesystem guarantees for append-then-read visibility.
package logfile

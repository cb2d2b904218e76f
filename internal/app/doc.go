// Package app provides the application service layer.
//
// Service runs ingestion sessions: it pumps lines from a producer into the
// durable log and answers status, history and latest-reading requests.
// Watcher tails the log and publishes every new reading to live subscribers.
// HTTP handlers depend on Service; Service depends on domain interfaces and
// the logfile package.
package app

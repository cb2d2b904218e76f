// Package source produces raw sensor lines for an ingestion session.
//
// A Device reads newline-delimited text from a serial device node (or any
// readable file or FIFO). A Simulator synthesizes accelerometer samples at a
// fixed rate for running without hardware. Factory picks one from a source id.
package source

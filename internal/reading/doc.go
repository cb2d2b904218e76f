// Package reading converts raw sensor lines into domain Readings.
//
// Parsing never fails: each of the first three comma-separated fields is read
// as a float64, and a field that is missing or does not parse yields 0.0. The
// trimmed original line is always kept in Reading.Raw so malformed input can be
// inspected after the fact.
package reading

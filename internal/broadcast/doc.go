// Package broadcast fans parsed readings out to live subscribers.
//
// The registry is a map guarded by one mutex. Publish copies the current
// subscribers under that mutex and then hands the reading to each copy, so
// subscribe/unsubscribe never block behind a slow delivery. Every subscriber
// owns a bounded queue drained by its own writer goroutine: a full queue drops
// its oldest reading instead of stalling the publisher, and the first failed
// sink write removes the subscriber for good.
package broadcast

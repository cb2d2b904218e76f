package domain

import "errors"

var (
	ErrTransientIO         = errors.New("transient io error")
	ErrMalformedInput      = errors.New("malformed input")
	ErrSubscriberGone      = errors.New("subscriber gone")
	ErrSourceUnavailable   = errors.New("source unavailable")
	ErrUnknownSource       = errors.New("unknown source")
	ErrIngestionRunning    = errors.New("ingestion already running")
	ErrIngestionNotRunning = errors.New("ingestion not running")
	ErrTooManySubscribers  = errors.New("too many subscribers")
)

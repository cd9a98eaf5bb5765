package service

import "errors"

// ErrQueueFull is returned when the ingestion queue is saturated and a
// submission was rejected under backpressure. Callers should surface
// this as a retryable, 503-class failure.
var ErrQueueFull = errors.New("service: event queue full")

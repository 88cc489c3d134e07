package redis

import "errors"

// Domain-specific errors for Redis operations.
var (
	// ErrConnectionFailed is returned when the initial ping fails.
	ErrConnectionFailed = errors.New("redis: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("redis: client not connected")
)

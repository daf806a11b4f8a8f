package config

import "errors"

var (
	// ErrEmptyPrefix is returned when no URL prefix filter is configured
	ErrEmptyPrefix = errors.New("prefix cannot be empty")
	// ErrInvalidWorkers is returned when a worker count is not greater than 0
	ErrInvalidWorkers = errors.New("worker counts must be greater than 0")
	// ErrInvalidQueueLength is returned when the admission bound is not greater than 0
	ErrInvalidQueueLength = errors.New("queue_length must be greater than 0")
	// ErrInvalidMaxRetry is returned when the attempt budget is not greater than 0
	ErrInvalidMaxRetry = errors.New("max_retry must be greater than 0")
	// ErrInvalidBatchSize is returned when the flush threshold is not greater than 0
	ErrInvalidBatchSize = errors.New("batch_size must be greater than 0")
	// ErrInvalidTimeout is returned when a timeout is not greater than 0
	ErrInvalidTimeout = errors.New("timeouts must be greater than 0")
	// ErrEmptyDatabasePath is returned when database path is empty
	ErrEmptyDatabasePath = errors.New("database_path cannot be empty")
)

package sync

import "time"

// ProgressKind discriminates progress events.
type ProgressKind int

const (
	// ProgressStarted is emitted exactly once per sync pass, before the
	// first page.
	ProgressStarted ProgressKind = iota
	// ProgressItemSynced carries the running total after an item upsert.
	ProgressItemSynced
	// ProgressRetrying announces a retry after RetryIn: either the in-pass
	// refresh-and-retry of a page or a supervisor restart after its backoff.
	ProgressRetrying
	// ProgressFinished carries the final total of a successful pass.
	ProgressFinished
)

// ProgressEvent is one entry of the progress stream.
type ProgressEvent struct {
	Kind    ProgressKind
	Count   int64
	RetryIn time.Duration
}

// StatusEvent is one entry of the status stream. Message is an opaque,
// human-readable string; consumers parse no structure from it.
type StatusEvent struct {
	LastSynced time.Time
	Message    string
}

// ErrorKind discriminates error events.
type ErrorKind int

const (
	// ErrorPeriodicSyncFailed reports a failed sync pass.
	ErrorPeriodicSyncFailed ErrorKind = iota
	// ErrorTokenRefreshFailed reports a failed token refresh.
	ErrorTokenRefreshFailed
	// ErrorRestartAttempt reports a failed run of a supervised task;
	// Attempt counts consecutive failures. It is emitted for every failure,
	// including the one that reaches the strike limit and aborts the task.
	ErrorRestartAttempt
	// ErrorAborted reports that the supervisor gave up after the strike
	// limit.
	ErrorAborted
)

// ErrorEvent is one entry of the error stream.
type ErrorEvent struct {
	Kind        ErrorKind
	Message     string
	LastSuccess time.Time
	Attempt     int
}

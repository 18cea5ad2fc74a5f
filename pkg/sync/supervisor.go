package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/Christopher-Schulze/googlepicz/pkg/auth"
	"github.com/Christopher-Schulze/googlepicz/util"
	"github.com/Christopher-Schulze/googlepicz/util/log"
)

// maxConsecutiveFailures is the strike limit: a task aborts after this many
// failures without an intervening success.
const maxConsecutiveFailures = 5

// AbortedError is returned from a supervised task that hit the strike
// limit.
type AbortedError struct {
	Task     string
	Failures int
	Last     error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("sync: %s aborted after %d consecutive failures: %v", e.Task, e.Failures, e.Last)
}

func (e *AbortedError) Unwrap() error { return e.Last }

// defaultBackoff is the exponential restart schedule: 1s, 2s, 4s, 8s, 16s.
func defaultBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > maxConsecutiveFailures {
		attempt = maxConsecutiveFailures
	}
	return time.Second << (attempt - 1)
}

// Supervisor owns the retry, backoff and abort policy for the periodic sync
// and token refresh tasks. Restarts are never folded into the sync loop
// itself; supervision stays separable and observable through events.
type Supervisor struct {
	syncer *Syncer
	auth   *auth.Service

	backoff func(attempt int) time.Duration

	lastSyncSuccess    *util.SafeTime
	lastRefreshSuccess *util.SafeTime
}

// NewSupervisor creates a supervisor over the given syncer and auth
// service.
func NewSupervisor(syncer *Syncer, authService *auth.Service) *Supervisor {
	return &Supervisor{
		syncer:             syncer,
		auth:               authService,
		backoff:            defaultBackoff,
		lastSyncSuccess:    util.NewSafeTime(),
		lastRefreshSuccess: util.NewSafeTime(),
	}
}

func emitError(errs chan<- ErrorEvent, event ErrorEvent) {
	if errs != nil {
		errs <- event
	}
}

// runSupervised implements the shared task state machine: run, wait on
// success, back off and restart on failure, abort after the strike limit.
// The returned error is nil when shutdown stopped the task.
func (sv *Supervisor) runSupervised(
	task string,
	interval time.Duration,
	run func(ctx context.Context) error,
	onFailure func(err error),
	lastSuccess *util.SafeTime,
	errs chan<- ErrorEvent,
	progress chan<- ProgressEvent,
	shutdown <-chan struct{},
) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	failures := 0
	for {
		if shutdownRequested(shutdown) {
			return nil
		}

		err := run(ctx)
		if shutdownRequested(shutdown) {
			return nil
		}
		if err == nil {
			failures = 0
			if !sleep(ctx, shutdown, interval) {
				return nil
			}
			continue
		}

		failures++
		log.Printf("%s failed (attempt %d/%d): %v", task, failures, maxConsecutiveFailures, err)
		onFailure(err)
		emitError(errs, ErrorEvent{
			Kind:        ErrorRestartAttempt,
			Message:     err.Error(),
			Attempt:     failures,
			LastSuccess: lastSuccess.Value(),
		})

		if failures >= maxConsecutiveFailures {
			aborted := &AbortedError{Task: task, Failures: failures, Last: err}
			emitError(errs, ErrorEvent{
				Kind:    ErrorAborted,
				Message: aborted.Error(),
				Attempt: failures,
			})
			log.Printf("%s aborted after %d consecutive failures", task, failures)
			return aborted
		}

		wait := sv.backoff(failures)
		if progress != nil {
			progress <- ProgressEvent{Kind: ProgressRetrying, RetryIn: wait}
		}
		if !sleep(ctx, shutdown, wait) {
			return nil
		}
	}
}

// StartPeriodicSync launches the periodic sync task. It returns a channel
// delivering the task's final result: nil after a shutdown, an AbortedError
// after five consecutive failures.
func (sv *Supervisor) StartPeriodicSync(
	interval time.Duration,
	progress chan ProgressEvent,
	errs chan ErrorEvent,
	status chan StatusEvent,
	shutdown <-chan struct{},
) <-chan error {
	sv.syncer.SetProgressSink(progress)
	sv.syncer.SetStatusSink(status)

	done := make(chan error, 1)
	go func() {
		done <- sv.runSupervised(
			"periodic sync",
			interval,
			func(ctx context.Context) error {
				err := sv.syncer.SyncMediaItems(ctx, shutdown)
				if err == nil {
					sv.lastSyncSuccess.Set(time.Now())
				}
				return err
			},
			func(err error) {
				emitError(errs, ErrorEvent{
					Kind:        ErrorPeriodicSyncFailed,
					Message:     err.Error(),
					LastSuccess: sv.lastSyncSuccess.Value(),
				})
			},
			sv.lastSyncSuccess,
			errs,
			progress,
			shutdown,
		)
	}()
	return done
}

// StartTokenRefresh launches the periodic token refresh task with the same
// five-strike policy.
func (sv *Supervisor) StartTokenRefresh(
	interval time.Duration,
	errs chan ErrorEvent,
	shutdown <-chan struct{},
) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- sv.runSupervised(
			"token refresh",
			interval,
			func(ctx context.Context) error {
				_, err := sv.auth.RefreshAccessToken(ctx)
				if err == nil {
					sv.lastRefreshSuccess.Set(time.Now())
				}
				return err
			},
			func(err error) {
				emitError(errs, ErrorEvent{
					Kind:        ErrorTokenRefreshFailed,
					Message:     err.Error(),
					LastSuccess: sv.lastRefreshSuccess.Value(),
				})
			},
			sv.lastRefreshSuccess,
			errs,
			nil,
			shutdown,
		)
	}()
	return done
}

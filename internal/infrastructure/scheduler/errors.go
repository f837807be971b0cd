package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when a manual run is requested while the loop is stopped
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
)

package errors

import (
	"sync"
	"time"
)

// RunFailure records one failed generation run.
type RunFailure struct {
	Run       uint64
	Err       error
	Timestamp time.Time
}

// ErrorCollector keeps the failures of recent generation runs. The dev
// command uses it to report whether the last run succeeded.
type ErrorCollector struct {
	failures []RunFailure
	limit    int
	mutex    sync.RWMutex
}

// NewErrorCollector creates a collector holding at most limit failures;
// limit <= 0 means unbounded.
func NewErrorCollector(limit int) *ErrorCollector {
	return &ErrorCollector{
		failures: make([]RunFailure, 0),
		limit:    limit,
	}
}

// Add records a failure of run. nil errors are ignored.
func (ec *ErrorCollector) Add(run uint64, err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures = append(ec.failures, RunFailure{
		Run:       run,
		Err:       err,
		Timestamp: time.Now(),
	})
	if ec.limit > 0 && len(ec.failures) > ec.limit {
		ec.failures = ec.failures[len(ec.failures)-ec.limit:]
	}
}

// Failures returns a copy of the recorded failures, oldest first.
func (ec *ErrorCollector) Failures() []RunFailure {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]RunFailure, len(ec.failures))
	copy(result, ec.failures)
	return result
}

// Last returns the most recent failure.
func (ec *ErrorCollector) Last() (RunFailure, bool) {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	if len(ec.failures) == 0 {
		return RunFailure{}, false
	}
	return ec.failures[len(ec.failures)-1], true
}

// HasErrors returns true if any failure is recorded
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.failures) > 0
}

// Clear clears all failures
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures = ec.failures[:0]
}

package pipeline

import (
	"sync"
	"time"
)

// RunMetrics tracks regenerate runs executed by a Queue.
type RunMetrics struct {
	TotalRuns       int64
	SuccessfulRuns  int64
	FailedRuns      int64
	Coalesced       int64
	AverageDuration time.Duration
	TotalDuration   time.Duration
	mutex           sync.RWMutex
}

// NewRunMetrics creates a new metrics tracker
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{}
}

// RecordRun records the outcome of one run.
func (m *RunMetrics) RecordRun(duration time.Duration, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalRuns++
	m.TotalDuration += duration

	if err != nil {
		m.FailedRuns++
	} else {
		m.SuccessfulRuns++
	}

	m.AverageDuration = m.TotalDuration / time.Duration(m.TotalRuns)
}

// RecordCoalesced counts a request folded into an already pending one.
func (m *RunMetrics) RecordCoalesced() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Coalesced++
}

// Snapshot returns a copy of the current counters.
func (m *RunMetrics) Snapshot() RunMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return RunMetrics{
		TotalRuns:       m.TotalRuns,
		SuccessfulRuns:  m.SuccessfulRuns,
		FailedRuns:      m.FailedRuns,
		Coalesced:       m.Coalesced,
		AverageDuration: m.AverageDuration,
		TotalDuration:   m.TotalDuration,
	}
}

// Reset clears all counters.
func (m *RunMetrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalRuns = 0
	m.SuccessfulRuns = 0
	m.FailedRuns = 0
	m.Coalesced = 0
	m.AverageDuration = 0
	m.TotalDuration = 0
}

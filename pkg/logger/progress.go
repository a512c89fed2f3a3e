package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker reports progress of a long-running batch at fixed log
// intervals: reconciliation runs iterate thousands of sales and the tracker
// keeps operators informed without flooding the log.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     int64
	matched     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string
	Total       int64
	LogInterval time.Duration
	Logger      Logger
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 5 * time.Second
	}

	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   time.Now(),
		lastLogTime: time.Now(),
		logInterval: config.LogInterval,
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Info("Starting operation")

	return tracker
}

// Increment records one processed item and whether it produced a link.
func (p *ProgressTracker) Increment(matched bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current++
	if matched {
		p.matched++
	}

	now := time.Now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logProgress(now)
		p.lastLogTime = now
	}
}

// Complete marks the operation as complete and logs final statistics
func (p *ProgressTracker) Complete() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	now := time.Now()
	duration := now.Sub(p.startTime)
	rate := 0.0
	if duration.Seconds() > 0 {
		rate = float64(p.current) / duration.Seconds()
	}

	p.logger.WithFields(Fields{
		"operation": p.operation,
		"processed": p.current,
		"matched":   p.matched,
		"duration":  duration.String(),
		"rate":      fmt.Sprintf("%.2f/sec", rate),
	}).Info("Operation completed")
}

// CompleteWithError marks the operation as aborted.
func (p *ProgressTracker) CompleteWithError(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.WithError(err).WithFields(Fields{
		"operation": p.operation,
		"processed": p.current,
		"matched":   p.matched,
	}).Error("Operation aborted")
}

func (p *ProgressTracker) logProgress(now time.Time) {
	elapsed := now.Sub(p.startTime)

	fields := Fields{
		"operation": p.operation,
		"processed": p.current,
		"matched":   p.matched,
		"elapsed":   elapsed.String(),
	}

	if p.total > 0 {
		percent := float64(p.current) / float64(p.total) * 100
		fields["percent"] = fmt.Sprintf("%.1f%%", percent)
	}

	p.logger.WithFields(fields).Info("Progress update")
}

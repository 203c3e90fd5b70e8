package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProgressSink receives progress updates during a run.
type ProgressSink interface {
	Report(stage string, percent float64, remaining time.Duration)
}

// NopSink discards progress.
type NopSink struct{}

// Report does nothing.
func (NopSink) Report(string, float64, time.Duration) {}

// LogSink writes progress to a zap logger.
type LogSink struct {
	Log *zap.Logger
}

// Report logs one update at info level.
func (s LogSink) Report(stage string, percent float64, remaining time.Duration) {
	s.Log.Info("progress",
		zap.String("stage", stage),
		zap.Float64("percent", percent),
		zap.Duration("remaining", remaining.Round(time.Second)))
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(stage string, percent float64, remaining time.Duration)

// Report calls f.
func (f SinkFunc) Report(stage string, percent float64, remaining time.Duration) {
	f(stage, percent, remaining)
}

// tracker turns leaf completions into percentages. The expected total is an
// estimate, so the percentage is capped below 100 until the task finishes.
type tracker struct {
	sink     ProgressSink
	start    time.Time
	mu       sync.Mutex
	expected int
	done     int
}

func newTracker(sink ProgressSink, expected int) *tracker {
	if expected < 1 {
		expected = 1
	}
	return &tracker{sink: sink, start: time.Now(), expected: expected}
}

func (t *tracker) stage(name string, percent float64) {
	t.sink.Report(name, percent, 0)
}

func (t *tracker) leaf(stage string) {
	t.mu.Lock()
	t.done++
	done, expected := t.done, t.expected
	if done > expected {
		expected = done + 1
	}
	t.mu.Unlock()

	percent := 100 * float64(done) / float64(expected)
	if percent > 99 {
		percent = 99
	}
	elapsed := time.Since(t.start)
	remaining := time.Duration(float64(elapsed) / float64(done) * float64(expected-done))
	t.sink.Report(stage, percent, remaining)
}

// Package ops carries the ambient logging and metrics concerns of the
// timeline fragment engine: a logrus-backed Logger adapter satisfying
// internal/timeline.Logger, and a Prometheus-backed Metrics adapter
// satisfying internal/timeline.Metrics.
package ops

import (
	"github.com/sirupsen/logrus"

	"github.com/hydrogen-go/timelinefill/internal/timeline"
)

// LogrusLogger adapts *logrus.Logger to the timeline.Logger collaborator
// interface.
type LogrusLogger struct {
	base *logrus.Logger
}

var _ timeline.Logger = (*LogrusLogger)(nil)

// NewLogrusLogger wraps the given logrus logger, or the package
// standard logger if base is nil.
func NewLogrusLogger(base *logrus.Logger) *LogrusLogger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &LogrusLogger{base: base}
}

// Log implements timeline.Logger.
func (l *LogrusLogger) Log(message string, level timeline.LogLevel, fields map[string]any) {
	var entry = l.base.WithFields(logrus.Fields(fields))
	switch level {
	case timeline.LogDebug:
		entry.Debug(message)
	case timeline.LogInfo:
		entry.Info(message)
	case timeline.LogWarn:
		entry.Warn(message)
	default:
		entry.Error(message)
	}
}

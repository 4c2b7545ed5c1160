package meter

import (
	"log/slog"

	sr "github.com/ineyio/searchrouter"
)

// LogMeter logs dispatch events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ sr.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnDispatch(e sr.DispatchEvent) {
	m.Logger.Info("dispatch",
		"request_id", e.RequestID,
		"strategy", e.Strategy,
		"parallel", e.Parallel,
		"eligible", e.Eligible,
	)
}

func (m *LogMeter) OnResult(e sr.ResultEvent) {
	if e.Error == nil {
		m.Logger.Info("result",
			"request_id", e.RequestID,
			"backend", e.Backend,
			"hits", e.Hits,
			"charged", e.Charged,
			"duration_ms", e.Duration.Milliseconds(),
		)
	} else {
		m.Logger.Warn("result_error",
			"request_id", e.RequestID,
			"backend", e.Backend,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
	}
}

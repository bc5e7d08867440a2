package obs

import (
	"sync"

	"go.uber.org/zap"
)

var (
	loggerOnce sync.Once
	logger     *zap.Logger
)

// Logger returns the shared structured logger used across the service.
// Production config: JSON to stdout, info level.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
	return logger
}

// Sync flushes buffered log entries; call on shutdown.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

package bitbuffer

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the logger that receives codec traces.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if nil == logger {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger replaces the trace logger.
// This must be called before any codec operations.
func SetLogger(l *zap.Logger) {
	logger = l
}

package call

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/tphan267/arqut-signal/pkg/logger"
)

// loggerFactory routes pion's internal logs into the application logger.
// Trace output is discarded.
type loggerFactory struct {
	log *logger.Logger
}

// NewLoggerFactory returns a pion LoggerFactory writing to log.
func NewLoggerFactory(log *logger.Logger) logging.LoggerFactory {
	return &loggerFactory{log: log}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &scopedLogger{log: f.log, scope: scope}
}

type scopedLogger struct {
	log   *logger.Logger
	scope string
}

func (l *scopedLogger) Trace(string)          {}
func (l *scopedLogger) Tracef(string, ...any) {}

func (l *scopedLogger) Debug(msg string) { l.log.Debug("[pion/%s] %s", l.scope, msg) }
func (l *scopedLogger) Info(msg string)  { l.log.Debug("[pion/%s] %s", l.scope, msg) }
func (l *scopedLogger) Warn(msg string)  { l.log.Warn("[pion/%s] %s", l.scope, msg) }
func (l *scopedLogger) Error(msg string) { l.log.Error("[pion/%s] %s", l.scope, msg) }

func (l *scopedLogger) Debugf(format string, args ...any) { l.Debug(fmt.Sprintf(format, args...)) }
func (l *scopedLogger) Infof(format string, args ...any)  { l.Info(fmt.Sprintf(format, args...)) }
func (l *scopedLogger) Warnf(format string, args ...any)  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *scopedLogger) Errorf(format string, args ...any) { l.Error(fmt.Sprintf(format, args...)) }

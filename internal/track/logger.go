package track

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel defines the verbosity of logging.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// LogFile configures rotation for file logging.
type LogFile struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogger creates a zap logger with the given level. When file.Path is
// set, JSON entries go to a rotating file instead of stderr.
func NewLogger(level LogLevel, file LogFile) (*zap.Logger, error) {
	if file.Path == "" {
		return createLogger(level), nil
	}

	if err := os.MkdirAll(filepath.Dir(file.Path), 0755); err != nil {
		return nil, err
	}
	if file.MaxSizeMB <= 0 {
		file.MaxSizeMB = 10
	}

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	})
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, writer, zap.NewAtomicLevelAt(zapLevel(level)))
	return zap.New(core), nil
}

// createLogger creates a console zap logger with the specified log level.
func createLogger(level LogLevel) *zap.Logger {
	var config zap.Config

	switch level {
	case LogLevelDebug:
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel(level))

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelError:
		return zap.ErrorLevel
	case LogLevelWarn:
		return zap.WarnLevel
	case LogLevelDebug:
		return zap.DebugLevel
	default:
		return zap.InfoLevel
	}
}

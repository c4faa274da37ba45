package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logEnv overrides the configured log level when set.
const logEnv = "SPLITDEMO_LOG"

// parseLevel maps the first letter of a level name to a zap level:
// V or D for debug, I for info, W for warn, E for error, F or N for fatal.
// Anything else, including the empty string, is info.
func parseLevel(input string) zapcore.Level {
	if len(input) == 0 {
		return zapcore.InfoLevel
	}
	switch input[0] {
	case 'V', 'v', 'D', 'd':
		return zapcore.DebugLevel
	case 'I', 'i':
		return zapcore.InfoLevel
	case 'W', 'w':
		return zapcore.WarnLevel
	case 'E', 'e':
		return zapcore.ErrorLevel
	case 'F', 'f', 'N', 'n':
		return zapcore.DPanicLevel
	}
	return zapcore.InfoLevel
}

// NewLogger builds the root logger: JSON lines on stderr and, when logFile is
// not empty, appended to that file as well.  The environment variable
// SPLITDEMO_LOG takes precedence over level.
func NewLogger(level, logFile string) (*zap.Logger, error) {
	if v, ok := os.LookupEnv(logEnv); ok {
		level = v
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil
	cfg.OutputPaths = []string{"stderr"}
	if logFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logFile)
	}
	return cfg.Build()
}

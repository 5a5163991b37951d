package portalauth

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the engine logger from cfg. Disabled logging yields a
// no-op logger.
func newLogger(cfg LoggingConfig) (*zap.Logger, error) {
	if !cfg.Enabled {
		return zap.NewNop(), nil
	}

	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	switch cfg.Format {
	case "console":
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json":
		zapConfig.Encoding = "json"
	}

	if cfg.OutputPath != "" {
		zapConfig.OutputPaths = []string{cfg.OutputPath}
	}

	return zapConfig.Build()
}

func parseLogLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

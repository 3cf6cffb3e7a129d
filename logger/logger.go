// Package logger provides zap-based structured logging for the scheduler
// service. A single global SugaredLogger is initialized once by main and
// handed to components explicitly; the global exists so early startup code
// (config loading, migrations) can log before wiring completes.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger instance
	Logger *zap.SugaredLogger
	// JSONOutput tracks whether JSON output is enabled
	JSONOutput bool
)

func init() {
	// Safe no-op logger at package load time so callers never hit a nil
	// pointer if they log before Initialize() runs
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger. jsonOutput selects machine-readable
// JSON lines; otherwise a human-readable console encoder is used.
func Initialize(jsonOutput bool) error {
	logger, err := build(jsonOutput, zap.InfoLevel)
	if err != nil {
		return err
	}
	JSONOutput = jsonOutput
	Logger = logger
	return nil
}

// InitializeVerbose is Initialize with debug-level output enabled.
func InitializeVerbose(jsonOutput bool) error {
	logger, err := build(jsonOutput, zap.DebugLevel)
	if err != nil {
		return err
	}
	JSONOutput = jsonOutput
	Logger = logger
	return nil
}

func build(jsonOutput bool, level zapcore.Level) (*zap.SugaredLogger, error) {
	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
		zapLogger, err := config.Build()
		if err != nil {
			return nil, err
		}
		return zapLogger.Sugar(), nil
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")

	zapLogger := zap.New(
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		),
	)
	return zapLogger.Sugar(), nil
}

// NewNop returns a no-op logger for tests and silent components.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

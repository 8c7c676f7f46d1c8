package obs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	loggerMu sync.RWMutex
	logger   *zap.Logger
)

// LogConfig selects level and destination of the process logger.
type LogConfig struct {
	Level      string
	Output     string // stdout | file
	Path       string
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Configure builds the shared logger from cfg and installs it.
func Configure(cfg LogConfig) (*zap.Logger, error) {
	var ws zapcore.WriteSyncer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		ws = zapcore.AddSync(os.Stdout)
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("log path is required when output is 'file'")
		}
		name := cfg.Filename
		if name == "" {
			name = "accounts.log"
		}
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(cfg.Path, name),
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 10),
			MaxAge:     orDefault(cfg.MaxAgeDays, 7),
			Compress:   true,
		})
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	core := zapcore.NewCore(newEncoder(), ws, parseLevel(cfg.Level))
	l := zap.New(core, zap.AddCaller())
	SetLogger(l)
	return l, nil
}

// Logger returns the shared structured logger used across the service.
func Logger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = zap.New(zapcore.NewCore(newEncoder(), zapcore.AddSync(os.Stdout), zapcore.InfoLevel))
	}
	return logger
}

// SetLogger replaces the shared logger and returns a func restoring the previous one.
func SetLogger(l *zap.Logger) func() {
	loggerMu.Lock()
	prev := logger
	logger = l
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

func newEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

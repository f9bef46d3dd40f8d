package logging

import (
	"errors"
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultRotationSize  = 10 * 1024 * 1024
	defaultRotationCount = 5
)

// Config selects the log level, encoder and optional rotating file output.
type Config struct {
	Level string
	Dev   bool

	// File enables a rotating log file in addition to stdout. Rotated files
	// get a date suffix; File itself is kept as a symlink to the newest one.
	File          string
	RotationSize  int64
	RotationCount uint
}

// ConfigFromEnv reads LOG_DEV, LOG_LEVEL and LOG_FILE.
func ConfigFromEnv() Config {
	dev := os.Getenv("LOG_DEV") == "1"
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		if dev {
			lvl = "debug"
		} else {
			lvl = "info"
		}
	}
	return Config{
		Level: lvl,
		Dev:   dev,
		File:  os.Getenv("LOG_FILE"),
	}
}

func levelFromString(l string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init builds the process logger.
func Init(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev && cfg.File == "" {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl),
	}
	if cfg.File != "" {
		w, err := newRotatingWriter(cfg)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), w, lvl))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

func newRotatingWriter(cfg Config) (zapcore.WriteSyncer, error) {
	if strings.TrimSpace(cfg.File) == "" {
		return nil, errors.New("log file path is empty")
	}
	size := cfg.RotationSize
	if size <= 0 {
		size = defaultRotationSize
	}
	count := cfg.RotationCount
	if count == 0 {
		count = defaultRotationCount
	}

	rl, err := rotatelogs.New(
		cfg.File+".%Y%m%d",
		rotatelogs.WithLinkName(cfg.File),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithRotationSize(size),
		rotatelogs.WithRotationCount(count),
	)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(rl), nil
}

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vocalingo/core/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	timeLayout  = "2006-01-02 15:04:05.000"
	logFilePerm = 0o644
	logDirPerm  = 0o755
)

// New builds the process logger from config. Console output always goes to
// stdout; when Dir is set every line is also appended to a daily file there.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	atom := zap.NewAtomicLevelAt(level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), atom)}
	if cfg.Dir != "" {
		writer, err := newDailyWriter(cfg.Dir)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), atom))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	_ = zap.RedirectStdLog(logger)
	return logger, nil
}

// dailyWriter appends to <dir>/vocalingo_<date>.log, rolling over at midnight.
type dailyWriter struct {
	mu  sync.Mutex
	dir string
}

func newDailyWriter(dir string) (*dailyWriter, error) {
	if err := os.MkdirAll(dir, logDirPerm); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &dailyWriter{dir: dir}, nil
}

func filename(now time.Time) string {
	return "vocalingo_" + now.Format("2006-01-02") + ".log"
}

func (w *dailyWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(filepath.Join(w.dir, filename(time.Now())), os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFilePerm)
	if err != nil {
		return 0, err
	}
	n, writeErr := file.Write(p)
	if closeErr := file.Close(); writeErr == nil {
		writeErr = closeErr
	}
	return n, writeErr
}

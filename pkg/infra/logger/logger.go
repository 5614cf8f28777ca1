package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const fileBufferSize = 32 * 1024

// NewLogger builds the JSON logger. Entries go to out (stderr when nil) and,
// when logFile is set, to an async file sink. The returned close func
// flushes the sink and is safe to call when no file was configured.
func NewLogger(level, logFile string, out io.Writer) (*logrus.Logger, func() error, error) {
	logger := logrus.New()

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})

	lvl, err := parseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	logger.SetLevel(lvl)

	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	noop := func() error { return nil }
	if logFile == "" {
		return logger, noop, nil
	}

	logFile = filepath.Clean(logFile)
	if dir := filepath.Dir(logFile); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	asyncWriter, err := NewAsyncFileWriter(logFile, fileBufferSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize async log writer: %w", err)
	}
	logger.AddHook(NewFileHook(asyncWriter))

	return logger, asyncWriter.Close, nil
}

func parseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return logrus.InfoLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unsupported log level %q", level)
	}
}

package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// FileHook mirrors every formatted entry into a secondary writer.
type FileHook struct {
	writer io.Writer
}

func NewFileHook(w io.Writer) *FileHook {
	return &FileHook{writer: w}
}

func (h *FileHook) Fire(entry *logrus.Entry) error {
	line, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}

func (h *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

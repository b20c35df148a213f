package config

import (
	"io"
	"path/filepath"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a logger that writes to w and, when File is set, to a
// rotating log file. Relative file names are resolved against base. The
// returned closer releases the log file.
func (c LogConfig) NewLogger(w io.Writer, base string) (logging.Logger, io.Closer) {
	level, _ := ParseLevel(c.Level)

	if c.File == "" {
		return logging.New(level, w, c.Suppress), io.NopCloser(nil)
	}

	path := c.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	fileLog := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
	}
	return logging.New(level, io.MultiWriter(w, fileLog), c.Suppress), fileLog
}

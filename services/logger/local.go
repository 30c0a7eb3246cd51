package logsvc

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

const timestampFormat = "2006-01-02 15:04:05"

// NewLocal returns a logrus logger writing to `out` and, when conf.File is set, to a rotated log file.
func NewLocal(conf core.LogConfig, out io.Writer) (*logrus.Logger, error) {
	lgr := logrus.New()

	level, err := logrus.ParseLevel(conf.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	lgr.SetLevel(level)
	lgr.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat})

	writers := []io.Writer{out}
	if conf.File != "" {
		if err := os.MkdirAll(filepath.Dir(conf.File), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating log directory")
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.MaxSize,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAge,
			Compress:   conf.Compress,
		})
	}
	lgr.SetOutput(io.MultiWriter(writers...))
	return lgr, nil
}

// Package corelog builds the logrus loggers used by the master and worker
// processes. It generalizes the teacher CLI's verbose/quiet/json output
// split into a single structured logger rather than a REPL output envelope.
package corelog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls logger construction.
type Options struct {
	JSON    bool
	Verbose bool
	Quiet   bool
}

// New builds a *logrus.Logger per Options. JSON output is used for
// non-interactive log collection (matching the master/worker split where
// worker stdout is normally redirected to a per-worker log file); text
// output with full timestamps is used otherwise. Colors are not forced off:
// logrus colors text only when stdout is a terminal.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	switch {
	case opts.Quiet:
		log.SetLevel(logrus.WarnLevel)
	case opts.Verbose:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// WithWorker returns an entry pre-tagged with the worker ID, the common
// field every driver/coord log line carries.
func WithWorker(log *logrus.Logger, wid int) *logrus.Entry {
	return log.WithField("wid", wid)
}

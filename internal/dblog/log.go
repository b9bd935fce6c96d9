// Package dblog wires structured logging for fatal, non-recoverable
// conditions. User-input errors never pass through here: they are printed
// verbatim by internal/repl because tests assert on that literal text.
package dblog

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// New builds a logger that writes to stderr, tagged with a fresh session
// id so diagnostics from concurrent shell invocations against the same
// file can be told apart.
func New(level string) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.ErrorLevel
	}
	log.SetLevel(lvl)

	return log.WithField("session_id", uuid.NewString())
}

// Fatal logs err with msg and a stack-carrying cause chain, then
// terminates the process with a non-zero exit code.
func Fatal(log *logrus.Entry, err error, msg string) {
	log.WithError(err).WithField("stack", fmt.Sprintf("%+v", err)).Error(msg)
	os.Exit(1)
}

package testutil

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestLogger returns a logger that writes through t.Log, so output only
// shows up for failing or verbose runs.
func TestLogger(t *testing.T) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(testWriter{t})
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	t.Cleanup(func() {
		logger.SetOutput(io.Discard)
	})
	return logger
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

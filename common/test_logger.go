package common

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// testLoggerAdapter maps writes into testing.T.Log calls, so logging
// from a passing test stays silent and only surfaces on failure.
type testLoggerAdapter struct {
	t      *testing.T
	prefix string
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	if len(d) > 0 && d[len(d)-1] == '\n' {
		d = d[:len(d)-1]
	}
	if a.prefix != "" {
		a.t.Log(a.prefix + ": " + string(d))
	} else {
		a.t.Log(string(d))
	}
	return len(d), nil
}

// NewTestLogger returns a *logrus.Logger wired to t.Log.
func NewTestLogger(t *testing.T) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{t: t}
	logger.Level = logrus.DebugLevel
	return logger
}

package testutils

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// TestHelper bundles a test's logger with its testing.T.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper whose logger writes through t.Log.
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{
		T:      t,
		Logger: NewTestLogger(t),
	}
}

// NewTestLogger returns a debug level logger routed to t.Log, so output is
// only shown for failing or verbose runs.
func NewTestLogger(t testing.TB) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetOutput(&testWriter{t: t})
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

type testWriter struct {
	t testing.TB
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// LogBuffer captures log output for assertions.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// LoggerSuite is a testify suite with a per-test logger.
//
//	type SessionSuite struct {
//	    testutils.LoggerSuite
//	}
//
//	func (s *SessionSuite) SetupTest() {
//	    s.LoggerSuite.SetupTest() // call parent first
//	    // ...
//	}
type LoggerSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger
	Logs   *LogBuffer
}

// SetupTest creates a fresh logger that writes into Logs.
func (s *LoggerSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logs = &LogBuffer{}
	s.Logger = s.Helper.Logger
	s.Logger.SetOutput(s.Logs)
}

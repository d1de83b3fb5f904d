// Package testlogger provides a logger configured for use inside tests.
package testlogger

import (
	"os"
	"testing"

	"github.com/drand/assemble/log"
)

// Level returns the level to default the logger to based on the
// ASSEMBLE_TEST_LOGS environment variable.
func Level(t testing.TB) int {
	logLevel := log.InfoLevel
	debugEnv, isDebug := os.LookupEnv("ASSEMBLE_TEST_LOGS")
	if isDebug && debugEnv == "DEBUG" {
		t.Log("enabling debug level logs")
		logLevel = log.DebugLevel
	}
	return logLevel
}

// New returns a logger named after the running test.
func New(t testing.TB) log.Logger {
	return log.New(nil, Level(t), true).
		With("testName", t.Name())
}

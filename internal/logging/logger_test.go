package logging_test

import (
	"testing"

	"github.com/nirvagold/hermes/internal/logging"
)

func TestNewDoesNotPanicForAnyLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logging.New(level, "json")
		logging.New(level, "console")
	}
}

func TestRecoverPanicSwallowsPanic(t *testing.T) {
	logger := logging.New("error", "json")
	func() {
		defer logging.RecoverPanic(logger, "test")
		panic("boom")
	}()
}

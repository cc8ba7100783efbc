package agent

import (
	"os"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// TestMain initializes the global logger before running the package tests.
func TestMain(m *testing.M) {
	logConfig := config.NewDefaultConfig().Logger()
	logConfig.Level = "debug"
	logConfig.ServiceName = "test-suite"
	logConfig.Format = "console"
	logConfig.LogFile = ""

	observability.Initialize(logConfig, zapcore.Lock(os.Stdout))

	exitCode := m.Run()

	observability.Sync()
	observability.ResetForTest()
	os.Exit(exitCode)
}

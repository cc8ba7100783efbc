// Package browser selects the automation engine behind the agent's browser
// primitives.
package browser

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser/pwengine"
	"github.com/xkilldash9x/webpilot/internal/browser/session"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// New returns an unstarted browser for the configured engine.
func New(cfg config.Interface, logger *zap.Logger) (schemas.Browser, error) {
	engine := cfg.Browser().Engine
	switch engine {
	case config.EngineChromedp, "":
		return session.New(cfg.Browser(), cfg.Network(), logger), nil
	case config.EnginePlaywright:
		return pwengine.New(cfg.Browser(), cfg.Network(), logger), nil
	default:
		return nil, fmt.Errorf("unsupported browser engine %q. Supported: [%s, %s]", engine, config.EngineChromedp, config.EnginePlaywright)
	}
}

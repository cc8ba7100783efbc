package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/browser/pwengine"
	"github.com/xkilldash9x/webpilot/internal/browser/session"
	"github.com/xkilldash9x/webpilot/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		engine  config.BrowserEngine
		want    interface{}
		wantErr string
	}{
		{name: "chromedp", engine: config.EngineChromedp, want: &session.Session{}},
		{name: "default", engine: "", want: &session.Session{}},
		{name: "playwright", engine: config.EnginePlaywright, want: &pwengine.Engine{}},
		{name: "unknown", engine: "firefox-marionette", wantErr: "unsupported browser engine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			cfg.SetBrowserEngine(tt.engine)

			b, err := New(cfg, zap.NewNop())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

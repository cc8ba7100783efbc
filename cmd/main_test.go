package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/mocks"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

const (
	completePlan = `{"thoughts":"the answer is on screen","action":{"type":"complete","details":{"result":"found it"}},"confidence":0.9}`
	waitPlan     = `{"thoughts":"nothing yet","action":{"type":"wait","details":{"seconds":0}}}`
)

// cmdHarness isolates a command run: logs and results go to a temp dir, and
// the planner and browser factories return mocks.
type cmdHarness struct {
	dir string
	llm *mocks.MockLLMClient

	mu       sync.Mutex
	browsers []*mocks.MockBrowser
}

func newHarness(t *testing.T) *cmdHarness {
	t.Helper()
	h := &cmdHarness{dir: t.TempDir(), llm: new(mocks.MockLLMClient)}
	h.llm.On("Close").Return(nil)

	t.Setenv("WEBPILOT_LOGGER_LOG_FILE", filepath.Join(h.dir, "webpilot.log"))
	t.Setenv("WEBPILOT_LOGGER_LEVEL", "error")
	t.Setenv("WEBPILOT_RESULTS_PATH", filepath.Join(h.dir, "result.json"))
	t.Setenv("WEBPILOT_AGENT_STEP_DELAY", "0s")
	for _, kind := range []string{"NAVIGATE", "CLICK", "TYPE", "PRESS", "SCROLL"} {
		t.Setenv("WEBPILOT_BROWSER_SETTLE_"+kind, "0s")
	}

	origLLM, origBrowser := newLLMClient, newBrowser
	newLLMClient = func(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
		return h.llm, nil
	}
	newBrowser = func(cfg config.Interface, logger *zap.Logger) (schemas.Browser, error) {
		b := newPageBrowser()
		h.mu.Lock()
		h.browsers = append(h.browsers, b)
		h.mu.Unlock()
		return b, nil
	}
	t.Cleanup(func() {
		newLLMClient, newBrowser = origLLM, origBrowser
		observability.ResetForTest()
	})
	return h
}

func (h *cmdHarness) plan(responses ...string) {
	for _, r := range responses {
		h.llm.On("Generate", mock.Anything, mock.Anything).Return(r, nil).Once()
	}
}

func (h *cmdHarness) browserCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.browsers)
}

// newPageBrowser is a browser sitting on a static page whose scripts return nothing.
func newPageBrowser() *mocks.MockBrowser {
	b := new(mocks.MockBrowser)
	b.On("Start", mock.Anything).Return(nil)
	b.On("Close", mock.Anything).Return(nil)
	b.On("Goto", mock.Anything, mock.Anything).Return(nil)
	b.On("CurrentURL", mock.Anything).Return("https://example.com/", nil)
	b.On("Title", mock.Anything).Return("Example", nil)
	b.On("EvaluateScript", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return b
}

// executeRoot runs a pristine command tree with args and stdin.
func executeRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

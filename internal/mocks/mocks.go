package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Network() config.NetworkConfig {
	args := m.Called()
	return args.Get(0).(config.NetworkConfig)
}

func (m *MockConfig) Agent() config.AgentConfig {
	args := m.Called()
	return args.Get(0).(config.AgentConfig)
}

func (m *MockConfig) Results() config.ResultsConfig {
	args := m.Called()
	return args.Get(0).(config.ResultsConfig)
}

func (m *MockConfig) Metrics() config.MetricsConfig {
	args := m.Called()
	return args.Get(0).(config.MetricsConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool)               { m.Called(b) }
func (m *MockConfig) SetBrowserEngine(e config.BrowserEngine) { m.Called(e) }
func (m *MockConfig) SetAgentMaxSteps(n int)                  { m.Called(n) }
func (m *MockConfig) SetAgentStepDelay(d time.Duration)       { m.Called(d) }
func (m *MockConfig) SetAgentAskUserPolicy(p config.AskUserPolicy) {
	m.Called(p)
}
func (m *MockConfig) SetResultsPath(p string) { m.Called(p) }

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)

// Generate honors an already canceled context before consulting expectations.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Browser Mock --

// MockBrowser mocks the schemas.Browser interface.
type MockBrowser struct {
	mock.Mock
}

var _ schemas.Browser = (*MockBrowser)(nil)

func (m *MockBrowser) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBrowser) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBrowser) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// EvaluateScript lets a test fill res through a Run hook.
func (m *MockBrowser) EvaluateScript(ctx context.Context, script string, res any) error {
	return m.Called(ctx, script, res).Error(0)
}

func (m *MockBrowser) Screenshot(ctx context.Context, opts schemas.ScreenshotOptions) ([]byte, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBrowser) Goto(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockBrowser) Click(ctx context.Context, locator string) error {
	return m.Called(ctx, locator).Error(0)
}

func (m *MockBrowser) ClickAt(ctx context.Context, x, y float64) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockBrowser) Fill(ctx context.Context, locator, text string) error {
	return m.Called(ctx, locator, text).Error(0)
}

func (m *MockBrowser) PressKey(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockBrowser) ScrollBy(ctx context.Context, dx, dy int) error {
	return m.Called(ctx, dx, dy).Error(0)
}

// -- Results Sink Mock --

// MockSink mocks results.Sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Save(ctx context.Context, result *schemas.TaskResult) error {
	return m.Called(ctx, result).Error(0)
}

func (m *MockSink) Close() error {
	return m.Called().Error(0)
}

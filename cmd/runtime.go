package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmclient"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/results"
)

const shutdownTimeout = 15 * time.Second

// Factories are package variables so command tests can swap in mocks.
var (
	newLLMClient = llmclient.NewClient
	newBrowser   = browser.New
	newSink      = results.NewSink
)

// components holds the long lived services shared by every task a command
// runs: the planner, the results sink and the optional metrics endpoint.
type components struct {
	cfg     *config.Config
	logger  *zap.Logger
	llm     schemas.LLMClient
	sink    results.Sink
	metrics *observability.Metrics

	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

// initializeComponents fails fast when the planner cannot be configured,
// most commonly because no API key is set.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{cfg: cfg, logger: logger}

	llm, err := newLLMClient(ctx, cfg.Agent().LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize planner: %w", err)
	}
	c.llm = llm

	sink, err := newSink(ctx, cfg.Results(), logger)
	if err != nil {
		c.Shutdown()
		return nil, fmt.Errorf("failed to initialize results sink: %w", err)
	}
	c.sink = sink

	if cfg.Metrics().Enabled {
		c.startMetrics(ctx)
	}
	return c, nil
}

func (c *components) startMetrics(ctx context.Context) {
	mcfg := c.cfg.Metrics()
	c.metrics = observability.NewMetrics(mcfg.Namespace)

	mctx, cancel := context.WithCancel(ctx)
	c.stopMetrics = cancel
	c.metricsDone = make(chan struct{})
	go func() {
		defer close(c.metricsDone)
		if err := observability.ServeMetrics(mctx, mcfg.Addr, c.metrics, c.logger); err != nil {
			c.logger.Error("Metrics endpoint failed.", zap.String("addr", mcfg.Addr), zap.Error(err))
		}
	}()
}

// startBrowser creates and launches a browser for the configured engine.
func (c *components) startBrowser(ctx context.Context) (schemas.Browser, error) {
	b, err := newBrowser(c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	if err := b.Start(ctx); err != nil {
		c.closeBrowser(b)
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return b, nil
}

func (c *components) closeBrowser(b schemas.Browser) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := b.Close(ctx); err != nil {
		c.logger.Warn("Error during browser shutdown.", zap.Error(err))
	}
}

func (c *components) newAgent(b schemas.Browser) *agent.Agent {
	return agent.New(c.cfg, b, c.llm, c.metrics, c.logger)
}

// runTask drives a to completion and persists the result. A persistence
// failure is logged; the result is still returned. agent.ErrStopped is
// passed through untouched.
func (c *components) runTask(ctx context.Context, a *agent.Agent, task string) (*schemas.TaskResult, error) {
	res, err := a.Run(ctx, task)
	if err != nil {
		return nil, err
	}
	if err := c.sink.Save(context.WithoutCancel(ctx), res); err != nil {
		c.logger.Error("Failed to persist task result.", zap.String("run_id", res.RunID), zap.Error(err))
	}
	return res, nil
}

// Shutdown releases everything initializeComponents acquired.
func (c *components) Shutdown() {
	if c.stopMetrics != nil {
		c.stopMetrics()
		<-c.metricsDone
	}
	if c.sink != nil {
		if err := c.sink.Close(); err != nil {
			c.logger.Warn("Error closing results sink.", zap.Error(err))
		}
	}
	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			c.logger.Warn("Error closing planner client.", zap.Error(err))
		}
	}
}

// printResult writes a short human readable summary of res.
func printResult(w io.Writer, res *schemas.TaskResult) {
	status := "success"
	if !res.Success {
		status = "failed"
	}
	fmt.Fprintf(w, "Task:    %s\n", res.Task)
	fmt.Fprintf(w, "Status:  %s\n", status)
	fmt.Fprintf(w, "Steps:   %d\n", res.Steps)
	if res.Success {
		fmt.Fprintf(w, "Result:  %s\n", res.Result)
	} else {
		fmt.Fprintf(w, "Error:   %s\n", res.Error)
	}
	fmt.Fprintf(w, "Run ID:  %s\n", res.RunID)
}

// normalizeURL adds a scheme to bare hosts like "example.com".
func normalizeURL(raw string) string {
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	for _, prefix := range []string{"about:", "data:", "file:", "javascript:"} {
		if strings.HasPrefix(raw, prefix) {
			return raw
		}
	}
	return "https://" + raw
}

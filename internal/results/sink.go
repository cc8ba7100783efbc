// Package results persists finished task runs.
package results

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink stores one TaskResult per run. Implementations are safe for
// concurrent use, since batch runs finish in parallel.
type Sink interface {
	Save(ctx context.Context, result *schemas.TaskResult) error
	Close() error
}

// NewSink builds the sink selected by cfg.Sink.
func NewSink(ctx context.Context, cfg config.ResultsConfig, logger *zap.Logger) (Sink, error) {
	switch cfg.Sink {
	case config.SinkFile, "":
		return NewFileSink(cfg.Path, logger), nil
	case config.SinkPostgres:
		return OpenPostgres(ctx, cfg.Postgres.URL, logger)
	case config.SinkNone:
		return Discard{}, nil
	}
	return nil, fmt.Errorf("unsupported results sink: %q", cfg.Sink)
}

// Discard drops every result.
type Discard struct{}

var _ Sink = Discard{}

func (Discard) Save(context.Context, *schemas.TaskResult) error { return nil }
func (Discard) Close() error                                    { return nil }

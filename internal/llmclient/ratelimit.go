package llmclient

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// RateLimitedClient spaces planner calls to at most rpm per minute. A call
// waiting for its slot gives up when ctx ends.
type RateLimitedClient struct {
	next    schemas.LLMClient
	limiter *rate.Limiter
}

var _ schemas.LLMClient = (*RateLimitedClient)(nil)

func NewRateLimitedClient(next schemas.LLMClient, rpm int) *RateLimitedClient {
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

func (r *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("planner rate limit: %w", err)
	}
	return r.next.Generate(ctx, req)
}

func (r *RateLimitedClient) Close() error {
	return r.next.Close()
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

const networkIdleCheckFrequency = 100 * time.Millisecond

// idleTracker counts in-flight requests of a tab from its network events.
// Redirects reuse the request ID, so requests are tracked by ID rather than
// by a bare counter.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
}

func newIdleTracker() *idleTracker {
	return &idleTracker{inflight: make(map[network.RequestID]struct{})}
}

// handleEvent is registered with chromedp.ListenTarget.
func (t *idleTracker) handleEvent(ev interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(t.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(t.inflight, e.RequestID)
	}
}

func (t *idleTracker) active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// reset forgets requests left over from a previous document.
func (t *idleTracker) reset() {
	t.mu.Lock()
	t.inflight = make(map[network.RequestID]struct{})
	t.mu.Unlock()
}

// wait blocks until no request has been in flight for quietPeriod.
func (t *idleTracker) wait(ctx context.Context, quietPeriod time.Duration) error {
	timer := time.NewTimer(quietPeriod)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	defer timer.Stop()

	isIdle := false
	ticker := time.NewTicker(networkIdleCheckFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if t.active() > 0 {
				if isIdle {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					isIdle = false
				}
			} else if !isIdle {
				timer.Reset(quietPeriod)
				isIdle = true
			}
		case <-timer.C:
			return nil
		}
	}
}

package session

import "context"

// CombineContext derives an operation context from the tab context that also
// ends when op does. Values, the CDP target among them, come from tab only.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(op, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Detach keeps the values of ctx but not its cancellation or deadline. The
// browser process must outlive the context that launched it.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

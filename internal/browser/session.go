// Package browser drives a real browser and records the network requests a
// page issues while it loads.
package browser

import (
	"context"
	"encoding/json"
	"time"
)

// CDP method names recorded in the network log.
const (
	MethodRequestWillBeSent = "Network.requestWillBeSent"
	MethodLoadingFinished   = "Network.loadingFinished"
	MethodLoadingFailed     = "Network.loadingFailed"
)

// Session is a single browser tab owned by one job.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// NetworkLog drains and returns every entry captured since the previous
	// call. Each entry is a JSON object {"method": ..., "params": {...}}.
	NetworkLog(ctx context.Context) ([]json.RawMessage, error)
	Close() error
}

// IdleWaiter is implemented by sessions that can tell when the page has
// stopped issuing requests.
type IdleWaiter interface {
	// WaitNetworkIdle returns once no request has been in flight for quiet,
	// or after max has elapsed, whichever comes first.
	WaitNetworkIdle(ctx context.Context, quiet, max time.Duration) error
}

// DocumentReader is implemented by sessions that can return rendered HTML.
type DocumentReader interface {
	OuterHTML(ctx context.Context) (string, error)
}

// Factory opens a new session.
type Factory func(ctx context.Context) (Session, error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

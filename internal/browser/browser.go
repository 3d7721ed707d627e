// Package browser defines the capability surface the scan engine needs
// from a driven browser page. The engine depends only on this interface,
// not on any specific automation product.
package browser

import (
	"context"
	"time"
)

// Request is one outgoing network request observed on a page.
type Request struct {
	URL       string
	Method    string
	PostBody  string
	Timestamp int64
}

// Cookie is a cookie visible to the page at snapshot time.
type Cookie struct {
	Name    string
	Domain  string
	Path    string
	Expires float64
}

// Page is one browser tab under scan control.
type Page interface {
	// Navigate loads url and returns once the document content event fired.
	Navigate(ctx context.Context, url string) error

	// Evaluate runs a script in the page and returns the JSON-encoded
	// result value.
	Evaluate(ctx context.Context, expr string) (string, error)

	// Requests is the continuous stream of outgoing requests. The channel
	// stays open for the page lifetime; delivery is best-effort.
	Requests() <-chan Request

	// Cookies snapshots the cookies visible to the page.
	Cookies(ctx context.Context) ([]Cookie, error)

	// Close releases the tab and its connection.
	Close() error
}

// Wait sleeps for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package session

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"docchat/gateway/internal/upstream"
	"docchat/gateway/pkg/api"
)

// DefaultRedirectDelay leaves time to read the expiry message before the
// consumer navigates to the login page.
const DefaultRedirectDelay = 2 * time.Second

// Sender is satisfied by *Client.
type Sender interface {
	Send(ctx context.Context, call upstream.Call) (upstream.Response, error)
}

type FetcherConfig struct {
	// RedirectDelay defaults to DefaultRedirectDelay. Negative means fire
	// immediately.
	RedirectDelay time.Duration
	// OnSessionExpired runs once per expiry, after the store was logged out.
	OnSessionExpired func()
}

// Fetcher is the one path session-scoped requests take. It owns the
// 401 -> logout -> redirect sequence so consumers do not repeat it.
type Fetcher struct {
	store   *Store
	sender  Sender
	delay   time.Duration
	expired func()
	pending atomic.Bool
}

func NewFetcher(store *Store, sender Sender, cfg FetcherConfig) *Fetcher {
	delay := cfg.RedirectDelay
	if delay == 0 {
		delay = DefaultRedirectDelay
	}
	if delay < 0 {
		delay = 0
	}
	return &Fetcher{
		store:   store,
		sender:  sender,
		delay:   delay,
		expired: cfg.OnSessionExpired,
	}
}

// Do sends call through the gateway. Non-2xx answers come back as *api.Error
// together with the response; a 401 additionally wraps ErrSessionExpired.
func (f *Fetcher) Do(ctx context.Context, call upstream.Call) (upstream.Response, error) {
	if !f.store.State().IsInitialized {
		return upstream.Response{}, ErrNotInitialized
	}

	resp, err := f.sender.Send(ctx, call)
	if err != nil {
		return upstream.Response{}, api.TransportError(err)
	}

	switch {
	case resp.Status == http.StatusUnauthorized:
		f.store.Logout(ctx)
		f.scheduleRedirect()
		return resp, fmt.Errorf("%w: %w", ErrSessionExpired, api.NewError(resp.Status, resp.Body))
	case !resp.OK():
		return resp, api.NewError(resp.Status, resp.Body)
	}
	return resp, nil
}

// DoJSON is Do plus decoding of a successful body into out.
func (f *Fetcher) DoJSON(ctx context.Context, call upstream.Call, out any) error {
	resp, err := f.Do(ctx, call)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return api.TransportError(err)
	}
	return nil
}

// scheduleRedirect coalesces concurrent expiries into one callback.
func (f *Fetcher) scheduleRedirect() {
	if f.expired == nil || !f.pending.CompareAndSwap(false, true) {
		return
	}
	time.AfterFunc(f.delay, func() {
		f.pending.Store(false)
		f.expired()
	})
}

package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page prepared for a single submission attempt:
// stealth scripts injected, resource blocking applied, navigated and
// settled.
type Tab struct {
	Page    *rod.Page
	PageURL string
	manager *Manager
}

// OpenTab creates a stealth tab, navigates to the URL, waits for load
// plus the settle delay, and returns it ready for DOM work.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b, err := mgr.Acquire()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, mgr.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	// Give script-rendered forms a moment to appear.
	select {
	case <-time.After(mgr.cfg.SettleWait):
	case <-ctx.Done():
		page.Close()
		return nil, ctx.Err()
	}

	return &Tab{Page: page, PageURL: pageURL, manager: mgr}, nil
}

// HTML serialises the live DOM as outer HTML. This is what the form
// locator and challenge detector re-run against, so forms injected by
// script are visible to them.
func (t *Tab) HTML(ctx context.Context) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// URL reports the page's current location, which may differ from
// PageURL after a submission redirect.
func (t *Tab) URL() string {
	info, err := t.Page.Info()
	if err != nil {
		return t.PageURL
	}
	return info.URL
}

// Close closes the tab. The underlying browser stays up for reuse.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

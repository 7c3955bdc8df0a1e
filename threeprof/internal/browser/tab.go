package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is a blank page sized to the configured viewport. The session
// installs its listeners before navigating, so OpenTab never navigates.
type Tab struct {
	Page *rod.Page
	URL  string
}

// OpenTab creates a new blank tab for url.
func OpenTab(ctx context.Context, mgr *Manager, url string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	var page *rod.Page
	var err error
	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	err = proto.EmulationSetDeviceMetricsOverride{
		Width:             mgr.cfg.ViewportWidth,
		Height:            mgr.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}.Call(page.Context(ctx))
	if err != nil {
		mgr.cfg.Logger.Warn("browser: viewport", "url", url, "error", err)
	}

	return &Tab{Page: page, URL: url}, nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

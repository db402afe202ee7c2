package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is an open page. Close it to let the manager recycle again.
type Tab struct {
	Page *rod.Page
	URL  string
	mgr  *Manager
}

// OpenTab opens a stealth tab and navigates to pageURL. Navigation is
// bounded to 30s; a load that never settles is logged, not fatal.
func (m *Manager) OpenTab(ctx context.Context, pageURL string) (*Tab, error) {
	b, err := m.acquire()
	if err != nil {
		return nil, err
	}
	page, err := stealth.Page(b)
	if err != nil {
		m.release()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	if len(m.cfg.ResourceBlocking) > 0 {
		blockResources(page, m.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		m.release()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return &Tab{Page: page, URL: pageURL, mgr: m}, nil
}

// Document returns the whole DOM, shadow roots excluded. Every call
// returns the same BackendNodeID for a node that is still attached.
func (t *Tab) Document(ctx context.Context) (*proto.DOMNode, error) {
	depth := -1
	doc, err := proto.DOMGetDocument{Depth: &depth}.Call(t.Page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("browser: DOM.getDocument: %w", err)
	}
	return doc.Root, nil
}

// Close closes the page.
func (t *Tab) Close() error {
	defer t.mgr.release()
	return t.Page.Close()
}

// blockResources fails requests for the configured resource kinds.
func blockResources(page *rod.Page, kinds []string) {
	block := make(map[proto.NetworkResourceType]bool, len(kinds))
	for _, k := range kinds {
		switch strings.ToLower(k) {
		case "images", "image":
			block[proto.NetworkResourceTypeImage] = true
		case "fonts", "font":
			block[proto.NetworkResourceTypeFont] = true
		case "media":
			block[proto.NetworkResourceTypeMedia] = true
		case "stylesheets", "stylesheet":
			block[proto.NetworkResourceTypeStylesheet] = true
		}
	}
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

package netidle

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Attach wires the gate to page: every request passes through the hijack
// router, and network and load events drive the counter. Call it before
// navigating. The returned stop function releases the router.
func (g *Gate) Attach(ctx context.Context, page *rod.Page) (stop func()) {
	log := g.opts.Logger
	router := page.HijackRequests()

	router.MustAdd("*", func(h *rod.Hijack) {
		url := h.Request.URL().String()
		g.Started(url)

		sub, ok, err := g.Route(url)
		if err != nil {
			log.Warn("netidle: substitution failed, continuing", "url", url, "error", err)
		}
		if !ok {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		h.Response.SetHeader("Content-Type", sub.ContentType)
		h.Response.SetBody(sub.Body)
	})
	go router.Run()

	wait := page.Context(ctx).EachEvent(
		func(e *proto.NetworkLoadingFinished) { g.Finished() },
		func(e *proto.NetworkLoadingFailed) { g.Finished() },
		func(e *proto.PageLoadEventFired) { g.Loaded() },
	)
	go wait()

	return func() {
		if err := router.Stop(); err != nil {
			log.Debug("netidle: stop router", "error", err)
		}
	}
}

package headless

import (
	"context"
	"sync/atomic"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Filter decides which sub-resource requests a tab may load.
type Filter interface {
	Allow(resourceType network.ResourceType) bool
}

// BlockImages aborts image requests and lets everything else through.
type BlockImages struct{}

// Allow implements Filter.
func (BlockImages) Allow(resourceType network.ResourceType) bool {
	return resourceType != network.ResourceTypeImage
}

// AllowAll lets every request through.
type AllowAll struct{}

// Allow implements Filter.
func (AllowAll) Allow(network.ResourceType) bool { return true }

// interceptor pauses every request of one tab and resolves it through a Filter.
type interceptor struct {
	filter  Filter
	logger  *zap.Logger
	blocked atomic.Int64
}

func newInterceptor(filter Filter, logger *zap.Logger) *interceptor {
	return &interceptor{filter: filter, logger: logger}
}

// enable turns on request interception for the tab; it must run before navigation.
func (i *interceptor) enable() chromedp.Action {
	return fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}})
}

// listen registers the pause handler on the tab context.
func (i *interceptor) listen(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// Handlers run on the event loop; CDP calls must not block it.
		go i.resolve(tabCtx, paused)
	})
}

func (i *interceptor) resolve(tabCtx context.Context, ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(tabCtx, c.Target)

	var err error
	if i.allowed(ev) {
		err = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
	} else {
		i.blocked.Add(1)
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	}
	if err != nil && tabCtx.Err() == nil {
		i.logger.Debug("failed to resolve paused request",
			zap.String("url", requestURL(ev)),
			zap.Error(err),
		)
	}
}

func (i *interceptor) allowed(ev *fetch.EventRequestPaused) bool {
	if i.filter == nil {
		return true
	}
	return i.filter.Allow(ev.ResourceType)
}

// Blocked reports how many requests were aborted.
func (i *interceptor) Blocked() int64 {
	return i.blocked.Load()
}

func requestURL(ev *fetch.EventRequestPaused) string {
	if ev == nil || ev.Request == nil {
		return ""
	}
	return ev.Request.URL
}

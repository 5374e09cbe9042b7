package engine

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockableTypes maps config names to protocol resource types. Stylesheets
// and scripts are deliberately absent: overflow styles decide which element
// scrolls, and feeds load through scripts.
var blockableTypes = map[string]proto.NetworkResourceType{
	"Image": proto.NetworkResourceTypeImage,
	"Font":  proto.NetworkResourceTypeFont,
	"Media": proto.NetworkResourceTypeMedia,
}

// adHosts are ad and tracking hosts whose slots keep re-rendering and would
// otherwise stop the growth metric from ever settling.
var adHosts = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"googletagservices.com": {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"criteo.net":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"moatads.com":           {},
	"pubmatic.com":          {},
	"rubiconproject.com":    {},
	"scorecardresearch.com": {},
	"hotjar.com":            {},
	"chartbeat.com":         {},
	"media.net":             {},
	"openx.net":             {},
	"casalemedia.com":       {},
	"sharethis.com":         {},
	"addthis.com":           {},
}

// isAdHost checks if a hostname (or any parent domain) is in adHosts.
func isAdHost(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := adHosts[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// blockedTypeSet resolves config names, ignoring unknown ones.
func blockedTypeSet(names []string) map[proto.NetworkResourceType]struct{} {
	set := make(map[proto.NetworkResourceType]struct{}, len(names))
	for _, name := range names {
		if rt, ok := blockableTypes[name]; ok {
			set[rt] = struct{}{}
		}
	}
	return set
}

// setupHijack installs a request interceptor that fails blocked resource
// types and, optionally, ad hosts. It returns nil when there is nothing to
// block; otherwise the caller must Stop the returned router.
// shouldBlock reports whether a request of type t to host is failed.
func shouldBlock(blocked map[proto.NetworkResourceType]struct{}, blockAds bool, t proto.NetworkResourceType, host string) bool {
	if _, ok := blocked[t]; ok {
		return true
	}
	return blockAds && isAdHost(host)
}

func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	blocked := blockedTypeSet(blockedTypes)
	if len(blocked) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if shouldBlock(blocked, blockAds, h.Request.Type(), h.Request.URL().Hostname()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()
	return router
}

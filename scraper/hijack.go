package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to CDP resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// trackerDomains are ad and analytics hosts blocked when BlockAds is on.
// Blocking them keeps third-party beacons from holding the network busy
// and from inflating the measured page weight.
var trackerDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"googletagservices.com": {},
	"connect.facebook.net":  {},
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
	"quantserve.com":        {},
	"hotjar.com":            {},
	"mixpanel.com":          {},
	"segment.io":            {},
	"analytics.twitter.com": {},
	"ads-twitter.com":       {},
	"chartbeat.net":         {},
	"openx.net":             {},
	"casalemedia.com":       {},
	"demdex.net":            {},
	"krxd.net":              {},
	"bluekai.com":           {},
	"rlcdn.com":             {},
	"consensu.org":          {},
}

// isTrackerHost reports whether host or any parent domain is blocklisted.
func isTrackerHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for host != "" {
		if _, ok := trackerDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
	}
	return false
}

// blockPolicy decides which subresource requests never leave the browser.
type blockPolicy struct {
	types    map[proto.NetworkResourceType]struct{}
	trackers bool
}

func newBlockPolicy(typeNames []string, blockTrackers bool) blockPolicy {
	p := blockPolicy{
		types:    make(map[proto.NetworkResourceType]struct{}, len(typeNames)),
		trackers: blockTrackers,
	}
	for _, name := range typeNames {
		if rt, ok := resourceTypes[name]; ok {
			p.types[rt] = struct{}{}
		}
	}
	return p
}

func (p blockPolicy) empty() bool {
	return len(p.types) == 0 && !p.trackers
}

// blocks never matches the main document, whatever the policy.
func (p blockPolicy) blocks(rt proto.NetworkResourceType, rawURL string) bool {
	if rt == proto.NetworkResourceTypeDocument {
		return false
	}
	if _, ok := p.types[rt]; ok {
		return true
	}
	if p.trackers {
		if u, err := url.Parse(rawURL); err == nil && isTrackerHost(u.Hostname()) {
			return true
		}
	}
	return false
}

// setupHijack installs a request interceptor that enforces policy.
// It returns the running router so the caller can defer router.Stop(),
// or nil when there is nothing to block.
func setupHijack(page *rod.Page, policy blockPolicy) *rod.HijackRouter {
	if policy.empty() {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if policy.blocks(h.Request.Type(), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()

	return router
}

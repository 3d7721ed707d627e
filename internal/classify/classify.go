package classify

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"consentscan/pkg/model"
)

// Category labels carried on classified events. CategoryCMP is the only
// essential category: consent-platform traffic is allowed pre-consent.
const (
	CategoryAnalytics     = "analytics"
	CategoryAdvertising   = "advertising"
	CategorySocial        = "social"
	CategorySessionReplay = "session-replay"
	CategoryTagManager    = "tag-manager"
	CategoryCMP           = "cmp"
)

// extractor fills vendor-specific semantic fields on an already matched
// event. Extractors never fail upward: a nil URL or unparseable body just
// leaves the fields empty.
type extractor func(u *url.URL, body string, ev *model.NetworkEvent) []model.NetworkEvent

// Signature binds a vendor name to its URL patterns. Matching is substring
// based over the lowercased request URL.
type Signature struct {
	Vendor   string
	Category string
	Patterns []string
	extract  extractor
}

// Classifier maps outgoing request URLs to tracker vendors. The table is
// evaluated in order and the first matching signature wins; generic
// signatures (plain "google." domains) must stay below the specific
// Ads/Analytics/Tag-Manager entries they overlap with.
type Classifier struct {
	table []Signature
}

// New returns a classifier backed by the default signature table.
func New() *Classifier { return &Classifier{table: defaultTable()} }

// Identify returns the vendor and category matching raw, or ok=false when
// no signature matches.
func (c *Classifier) Identify(raw string) (vendor, category string, ok bool) {
	lower := strings.ToLower(raw)
	for i := range c.table {
		s := &c.table[i]
		for _, p := range s.Patterns {
			if strings.Contains(lower, p) {
				return s.Vendor, s.Category, true
			}
		}
	}
	return "", "", false
}

// Classify maps one outgoing request to zero or more classified events.
// A request that matches no signature yields nil. Batched payloads (GA4)
// may expand into several events sharing the same capture metadata.
func (c *Classifier) Classify(raw, method, body string, ts int64, phase model.CapturePhase) []model.NetworkEvent {
	lower := strings.ToLower(raw)
	for i := range c.table {
		s := &c.table[i]
		matched := false
		for _, p := range s.Patterns {
			if strings.Contains(lower, p) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		base := model.NetworkEvent{
			URL:       raw,
			Method:    method,
			PostBody:  body,
			Timestamp: ts,
			Vendor:    s.Vendor,
			Category:  s.Category,
			Phase:     phase,
		}
		u, err := url.Parse(raw)
		if err != nil {
			u = nil // degrade to no extra fields
		}
		if s.extract == nil {
			return []model.NetworkEvent{base}
		}
		if out := s.extract(u, body, &base); out != nil {
			return out
		}
		return []model.NetworkEvent{base}
	}
	return nil
}

// IsEssential reports whether a category is exempt from the pre-consent
// violation rule.
func IsEssential(category string) bool { return category == CategoryCMP }

func defaultTable() []Signature {
	return []Signature{
		// Consent platforms first: their traffic is legitimate pre-consent
		// and some of it rides on generic CDN domains.
		{Vendor: "Cookiebot", Category: CategoryCMP, Patterns: []string{"consent.cookiebot.com", "consentcdn.cookiebot.com"}},
		{Vendor: "OneTrust", Category: CategoryCMP, Patterns: []string{"cdn.cookielaw.org", "onetrust.com"}},
		{Vendor: "Usercentrics", Category: CategoryCMP, Patterns: []string{"usercentrics.eu", "usercentrics.com"}},
		{Vendor: "Didomi", Category: CategoryCMP, Patterns: []string{"sdk.privacy-center.org", "api.privacy-center.org"}},
		{Vendor: "Quantcast Choice", Category: CategoryCMP, Patterns: []string{"cmp.quantcast.com", "quantcast.mgr.consensu.org"}},
		{Vendor: "TrustArc", Category: CategoryCMP, Patterns: []string{"consent.trustarc.com", "trustarc.mgr.consensu.org"}},
		{Vendor: "Iubenda", Category: CategoryCMP, Patterns: []string{"cdn.iubenda.com"}},
		{Vendor: "CookieYes", Category: CategoryCMP, Patterns: []string{"cdn-cookieyes.com", "app.cookieyes.com"}},

		// Google family: specific products before the generic domain entry.
		{Vendor: "Google Ads", Category: CategoryAdvertising, Patterns: []string{"googleadservices.com", "googleads.g.doubleclick.net", "google.com/pagead"}, extract: extractGoogleConsent},
		{Vendor: "DoubleClick", Category: CategoryAdvertising, Patterns: []string{"doubleclick.net"}, extract: extractGoogleConsent},
		{Vendor: "GA4", Category: CategoryAnalytics, Patterns: []string{"google-analytics.com/g/collect", "analytics.google.com/g/collect", "google-analytics.com/mp/collect"}, extract: extractGA4},
		{Vendor: "Google Analytics", Category: CategoryAnalytics, Patterns: []string{"google-analytics.com"}, extract: extractGoogleConsent},
		{Vendor: "Google Tag Manager", Category: CategoryTagManager, Patterns: []string{"googletagmanager.com"}, extract: extractGoogleConsent},
		{Vendor: "Google", Category: CategoryAdvertising, Patterns: []string{"google.com/ads", "google.de/ads", "gstatic.com/ads"}, extract: extractGoogleConsent},

		// Pixel-style vendors.
		{Vendor: "Facebook Pixel", Category: CategorySocial, Patterns: []string{"facebook.com/tr", "connect.facebook.net"}, extract: extractFacebook},
		{Vendor: "LinkedIn Insight", Category: CategorySocial, Patterns: []string{"px.ads.linkedin.com", "snap.licdn.com"}, extract: extractLinkedIn},
		{Vendor: "TikTok Pixel", Category: CategorySocial, Patterns: []string{"analytics.tiktok.com"}, extract: extractTikTok},
		{Vendor: "Pinterest Tag", Category: CategorySocial, Patterns: []string{"ct.pinterest.com"}, extract: extractPinterest},
		{Vendor: "Twitter Pixel", Category: CategorySocial, Patterns: []string{"analytics.twitter.com", "t.co/i/adsct"}, extract: extractTwitter},
		{Vendor: "Snap Pixel", Category: CategorySocial, Patterns: []string{"tr.snapchat.com", "sc-static.net"}},
		{Vendor: "Reddit Pixel", Category: CategorySocial, Patterns: []string{"alb.reddit.com", "events.redditmedia.com"}},

		// Session replay: a single synthetic Recording event.
		{Vendor: "Hotjar", Category: CategorySessionReplay, Patterns: []string{"hotjar.com", "hotjar.io"}, extract: extractRecording},
		{Vendor: "Microsoft Clarity", Category: CategorySessionReplay, Patterns: []string{"clarity.ms"}, extract: extractRecording},

		// Other analytics and advertising networks.
		{Vendor: "Matomo", Category: CategoryAnalytics, Patterns: []string{"matomo.php", "piwik.php", "matomo.cloud"}},
		{Vendor: "Hubspot", Category: CategoryAnalytics, Patterns: []string{"track.hubspot.com", "js.hs-scripts.com", "js.hs-analytics.net"}},
		{Vendor: "Segment", Category: CategoryAnalytics, Patterns: []string{"api.segment.io", "cdn.segment.com"}},
		{Vendor: "Mixpanel", Category: CategoryAnalytics, Patterns: []string{"api.mixpanel.com", "api-js.mixpanel.com"}},
		{Vendor: "Amplitude", Category: CategoryAnalytics, Patterns: []string{"api.amplitude.com", "api2.amplitude.com"}},
		{Vendor: "Yandex Metrica", Category: CategoryAnalytics, Patterns: []string{"mc.yandex.ru"}},
		{Vendor: "Plausible", Category: CategoryAnalytics, Patterns: []string{"plausible.io/api/event"}},
		{Vendor: "Microsoft Advertising", Category: CategoryAdvertising, Patterns: []string{"bat.bing.com"}},
		{Vendor: "Criteo", Category: CategoryAdvertising, Patterns: []string{"criteo.com", "criteo.net"}},
		{Vendor: "Taboola", Category: CategoryAdvertising, Patterns: []string{"trc.taboola.com", "cdn.taboola.com"}},
		{Vendor: "Outbrain", Category: CategoryAdvertising, Patterns: []string{"tr.outbrain.com", "amplify.outbrain.com"}},
		{Vendor: "Amazon Ads", Category: CategoryAdvertising, Patterns: []string{"amazon-adsystem.com"}},
		{Vendor: "AdRoll", Category: CategoryAdvertising, Patterns: []string{"d.adroll.com", "s.adroll.com"}},
		{Vendor: "Quantcast Measure", Category: CategoryAnalytics, Patterns: []string{"pixel.quantserve.com", "secure.quantserve.com"}},
	}
}

const (
	typeStandard = "standard"
	typeCustom   = "custom"
	typeClick    = "click"
)

func queryGet(u *url.URL, keys ...string) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func classifyAgainst(set map[string]struct{}, name string) string {
	if name == "" {
		return ""
	}
	if _, ok := set[name]; ok {
		return typeStandard
	}
	return typeCustom
}

var facebookStandard = eventSet(
	"PageView", "ViewContent", "AddToCart", "AddToWishlist", "InitiateCheckout",
	"AddPaymentInfo", "Purchase", "Lead", "CompleteRegistration", "Search",
	"Contact", "Subscribe", "StartTrial", "SubmitApplication", "Schedule",
	"FindLocation", "CustomizeProduct", "Donate",
)

func extractFacebook(u *url.URL, _ string, ev *model.NetworkEvent) []model.NetworkEvent {
	ev.EventName = queryGet(u, "ev")
	ev.EventType = classifyAgainst(facebookStandard, ev.EventName)
	if u != nil {
		for k, vals := range u.Query() {
			if strings.HasPrefix(k, "cd[") && strings.HasSuffix(k, "]") && len(vals) > 0 {
				if ev.Params == nil {
					ev.Params = map[string]any{}
				}
				ev.Params[k[3:len(k)-1]] = vals[0]
			}
		}
	}
	return nil
}

var linkedinStandard = eventSet("PageLoad", "Conversion")

func extractLinkedIn(u *url.URL, _ string, ev *model.NetworkEvent) []model.NetworkEvent {
	if name := queryGet(u, "event"); name != "" {
		ev.EventName = name
	} else if cid := queryGet(u, "conversionId"); cid != "" {
		ev.EventName = "Conversion"
		ev.Params = map[string]any{"conversionId": cid}
	} else if u != nil && strings.Contains(u.Path, "/collect") {
		ev.EventName = "PageLoad"
	}
	ev.EventType = classifyAgainst(linkedinStandard, ev.EventName)
	return nil
}

var tiktokStandard = eventSet(
	"Pageview", "ViewContent", "ClickButton", "Search", "AddToWishlist",
	"AddToCart", "InitiateCheckout", "AddPaymentInfo", "CompletePayment",
	"PlaceAnOrder", "Contact", "Download", "SubmitForm", "CompleteRegistration",
	"Subscribe",
)

func extractTikTok(u *url.URL, body string, ev *model.NetworkEvent) []model.NetworkEvent {
	ev.EventName = queryGet(u, "event")
	if ev.EventName == "" && body != "" {
		// pixel/track posts a JSON envelope
		if r := gjson.Get(body, "event"); r.Exists() {
			ev.EventName = r.String()
		} else if r := gjson.Get(body, "batch.0.event"); r.Exists() {
			ev.EventName = r.String()
		}
	}
	ev.EventType = classifyAgainst(tiktokStandard, ev.EventName)
	return nil
}

var pinterestStandard = eventSet(
	"pagevisit", "signup", "checkout", "addtocart", "lead", "search",
	"viewcategory", "watchvideo",
)

func extractPinterest(u *url.URL, _ string, ev *model.NetworkEvent) []model.NetworkEvent {
	ev.EventName = queryGet(u, "event")
	ev.EventType = classifyAgainst(pinterestStandard, strings.ToLower(ev.EventName))
	return nil
}

var twitterStandard = eventSet("pageview", "purchase", "download", "signup", "lead")

func extractTwitter(u *url.URL, _ string, ev *model.NetworkEvent) []model.NetworkEvent {
	// events=[["pageview",null]] on the universal tag
	if raw := queryGet(u, "events"); raw != "" {
		if r := gjson.Get(raw, "0.0"); r.Exists() {
			ev.EventName = r.String()
		}
	}
	if ev.EventName == "" {
		ev.EventName = queryGet(u, "event")
	}
	ev.EventType = classifyAgainst(twitterStandard, strings.ToLower(ev.EventName))
	return nil
}

func extractRecording(_ *url.URL, _ string, ev *model.NetworkEvent) []model.NetworkEvent {
	ev.EventName = "Recording"
	ev.EventType = typeStandard
	return nil
}

func extractGoogleConsent(u *url.URL, _ string, ev *model.NetworkEvent) []model.NetworkEvent {
	if gcs := queryGet(u, "gcs"); gcs != "" {
		if ev.Params == nil {
			ev.Params = map[string]any{}
		}
		label := DecodeConsentMode(gcs)
		ev.Params["consentMode"] = label
		if label == "denied" {
			ev.Params["consentDenied"] = true
		}
	}
	return nil
}

func eventSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

package classify

import (
	"net/url"
	"strconv"
	"strings"

	"consentscan/pkg/model"
)

// consentModeLabels decodes the gcs query parameter of Google requests.
// Values outside the table pass through as the raw string.
var consentModeLabels = map[string]string{
	"G111": "granted",
	"G100": "denied",
	"G1--": "denied",
	"G110": "ads-only",
	"G101": "analytics-only",
}

// DecodeConsentMode maps a gcs consent signal to a human label.
func DecodeConsentMode(gcs string) string {
	if label, ok := consentModeLabels[gcs]; ok {
		return label
	}
	return gcs
}

var ga4Standard = eventSet(
	"page_view", "scroll", "session_start", "first_visit", "user_engagement",
	"view_search_results", "video_start", "video_progress", "video_complete",
	"file_download", "form_start", "form_submit", "view_item", "view_item_list",
	"select_item", "view_promotion", "select_promotion", "add_to_cart",
	"remove_from_cart", "begin_checkout", "add_payment_info", "add_shipping_info",
	"purchase", "refund", "generate_lead", "login", "sign_up", "search",
	"share", "view_cart", "add_to_wishlist",
)

var ga4Click = eventSet("click", "select_content", "outbound_click")

// classifyGA4Event buckets a GA4 event name into standard, click or custom.
// Unknown names following the click_*/cta_* convention count as clicks.
func classifyGA4Event(name string) string {
	if name == "" {
		return ""
	}
	if _, ok := ga4Click[name]; ok {
		return typeClick
	}
	if strings.HasPrefix(name, "click_") || strings.HasPrefix(name, "cta_") {
		return typeClick
	}
	if _, ok := ga4Standard[name]; ok {
		return typeStandard
	}
	return typeCustom
}

// ParseGA4Body extracts the event names of a batched GA4 payload. Events
// are delimited by '&' within a line and by newlines between batched hits;
// first-seen order is preserved and duplicates are dropped. When no en=
// pair exists the alternate keys ev/event/e are consulted.
func ParseGA4Body(body string) []string {
	if body == "" {
		return nil
	}
	var names []string
	seen := map[string]struct{}{}
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		names = append(names, v)
	}
	for _, line := range strings.Split(body, "\n") {
		for _, pair := range strings.Split(line, "&") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) == 2 && kv[0] == "en" {
				add(unescape(kv[1]))
			}
		}
	}
	if len(names) > 0 {
		return names
	}
	for _, line := range strings.Split(body, "\n") {
		for _, pair := range strings.Split(line, "&") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch kv[0] {
			case "ev", "event", "e":
				add(unescape(kv[1]))
			}
		}
	}
	return names
}

// ParseGA4Params collects ep./epn. prefixed event parameters from a query
// or body pair list. epn. values parse as floats; unparseable numbers keep
// the raw string.
func ParseGA4Params(pairs map[string][]string) map[string]any {
	var params map[string]any
	set := func(k string, v any) {
		if params == nil {
			params = map[string]any{}
		}
		params[k] = v
	}
	for k, vals := range pairs {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		switch {
		case strings.HasPrefix(k, "epn."):
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				set(k[4:], f)
			} else {
				set(k[4:], v)
			}
		case strings.HasPrefix(k, "ep."):
			set(k[3:], v)
		}
	}
	return params
}

func bodyPairs(body string) map[string][]string {
	out := map[string][]string{}
	for _, line := range strings.Split(body, "\n") {
		for _, pair := range strings.Split(line, "&") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) == 2 {
				out[kv[0]] = append(out[kv[0]], unescape(kv[1]))
			}
		}
	}
	return out
}

func unescape(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	u, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return u
}

// extractGA4 resolves event names from the en query parameter and the
// batched POST body, expanding a multi-event hit into one event per name.
func extractGA4(u *url.URL, body string, ev *model.NetworkEvent) []model.NetworkEvent {
	extractGoogleConsent(u, body, ev)

	var names []string
	seen := map[string]struct{}{}
	if qn := queryGet(u, "en"); qn != "" {
		names = append(names, qn)
		seen[qn] = struct{}{}
	}
	for _, n := range ParseGA4Body(body) {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}

	var params map[string]any
	if u != nil {
		params = ParseGA4Params(u.Query())
	}
	if bp := ParseGA4Params(bodyPairs(body)); bp != nil {
		if params == nil {
			params = bp
		} else {
			for k, v := range bp {
				params[k] = v
			}
		}
	}
	if params != nil {
		if ev.Params == nil {
			ev.Params = map[string]any{}
		}
		for k, v := range params {
			ev.Params[k] = v
		}
	}

	if len(names) == 0 {
		return nil
	}
	out := make([]model.NetworkEvent, 0, len(names))
	for _, n := range names {
		e := *ev
		e.EventName = n
		e.EventType = classifyGA4Event(n)
		out = append(out, e)
	}
	return out
}

package consent

import "testing"

func TestDetectNothing(t *testing.T) {
	st := Detect(`{"globals":{},"banners":[],"blockedScripts":[]}`)
	if st.Detected {
		t.Fatalf("expected not detected, got %+v", st)
	}
}

func TestDetectGarbageProbe(t *testing.T) {
	// A broken probe payload must degrade to not-detected, never panic.
	for _, raw := range []string{"", "null", "not json at all"} {
		if st := Detect(raw); st.Detected {
			t.Fatalf("payload %q: expected not detected, got %+v", raw, st)
		}
	}
}

func TestDetectCookiebotWithConsent(t *testing.T) {
	st := Detect(`{
		"globals": {"cookiebot": {
			"hasResponse": true,
			"consent": {"necessary": true, "preferences": false, "statistics": true, "marketing": false}
		}},
		"banners": [], "blockedScripts": []
	}`)
	if !st.Detected || st.Type != "Cookiebot" || !st.HasResponse {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.Consent == nil || !st.Consent.Statistics || st.Consent.Marketing {
		t.Fatalf("consent purposes wrong: %+v", st.Consent)
	}
}

func TestDetectCookiebotNoResponse(t *testing.T) {
	st := Detect(`{"globals":{"cookiebot":{"hasResponse":false,"consent":null}}}`)
	if !st.Detected || st.HasResponse || st.Consent != nil {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestDetectOneTrustGroups(t *testing.T) {
	st := Detect(`{"globals":{"onetrust":{"activeGroups":",C0001,C0004,"}}}`)
	if !st.Detected || st.Type != "OneTrust" || !st.HasResponse {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.Consent == nil || !st.Consent.Necessary || !st.Consent.Marketing || st.Consent.Statistics {
		t.Fatalf("group decode wrong: %+v", st.Consent)
	}
}

func TestDetectPriorityNamedBeforeGeneric(t *testing.T) {
	// A page can expose a vendor global AND a visible banner; the named
	// vendor must win over the generic fallback.
	st := Detect(`{
		"globals": {"didomi": {"purposes": []}},
		"banners": ["#cookie-banner"]
	}`)
	if st.Type != "Didomi" {
		t.Fatalf("expected Didomi to outrank generic banner, got %q", st.Type)
	}
}

func TestDetectTCFAfterNamedVendors(t *testing.T) {
	// Quantcast ships __tcfapi too; the named entry outranks the generic
	// TCF fallback.
	st := Detect(`{"globals":{"quantcast":true,"tcf":true}}`)
	if st.Type != "Quantcast Choice" {
		t.Fatalf("expected Quantcast Choice, got %q", st.Type)
	}
	st = Detect(`{"globals":{"tcf":true}}`)
	if st.Type != "TCF" {
		t.Fatalf("expected TCF fallback, got %q", st.Type)
	}
}

func TestDetectGenericBannerFallback(t *testing.T) {
	st := Detect(`{"globals":{},"banners":[".cookie-banner"]}`)
	if !st.Detected || st.Type != "generic-banner" {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestDetectBlockedScriptsLast(t *testing.T) {
	st := Detect(`{"globals":{},"banners":[],"blockedScripts":["https://x.test/gtm.js"]}`)
	if !st.Detected || st.Type != "script-blocking" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if len(st.BlockedScripts) != 1 {
		t.Fatalf("blocked scripts not carried: %+v", st)
	}
}

func TestDetectCarriesBlockedScripts(t *testing.T) {
	st := Detect(`{
		"globals": {"cookiebot": {"hasResponse": false}},
		"blockedScripts": ["a.js", "b.js"]
	}`)
	if st.Type != "Cookiebot" || len(st.BlockedScripts) != 2 {
		t.Fatalf("blocked scripts should ride along with a vendor match: %+v", st)
	}
}

func TestDetectCookieYesCategories(t *testing.T) {
	st := Detect(`{"globals":{"cookieyes":{"consent":{"necessary":true,"functional":false,"analytics":true,"advertisement":false}}}}`)
	if st.Type != "CookieYes" || !st.HasResponse {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.Consent == nil || !st.Consent.Statistics || st.Consent.Marketing {
		t.Fatalf("categories wrong: %+v", st.Consent)
	}
}

func TestDetectDidomiPurposes(t *testing.T) {
	st := Detect(`{"globals":{"didomi":{"purposes":["advertising","analytics"]}}}`)
	if st.Type != "Didomi" || !st.HasResponse {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.Consent == nil || !st.Consent.Marketing || !st.Consent.Statistics || st.Consent.Preferences {
		t.Fatalf("purposes wrong: %+v", st.Consent)
	}
}

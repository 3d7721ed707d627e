// Package consent probes the page for consent-management platforms and
// can trigger an "accept all" decision. All probing failures degrade to
// "not detected"; nothing in this package propagates an error upward.
package consent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"consentscan/internal/browser"
	ilog "consentscan/internal/log"
	"consentscan/pkg/model"
)

// Interactor probes and interacts with the CMP of one page.
type Interactor struct {
	page browser.Page
}

func New(page browser.Page) *Interactor { return &Interactor{page: page} }

// CheckState probes the page global namespace for known consent-platform
// signatures and returns the highest-priority match.
func (i *Interactor) CheckState(ctx context.Context) model.CMPState {
	raw, err := i.page.Evaluate(ctx, probeScript())
	if err != nil {
		ilog.L().Debug().Err(err).Msg("cmp probe failed")
		return model.CMPState{Detected: false}
	}
	return Detect(raw)
}

// AcceptCookies walks the accept-selector list and clicks the first
// visible match. Returns whether a click occurred and which selector hit.
func (i *Interactor) AcceptCookies(ctx context.Context) (bool, string) {
	raw, err := i.page.Evaluate(ctx, acceptScript())
	if err != nil {
		ilog.L().Debug().Err(err).Msg("accept probe failed")
		return false, ""
	}
	res := gjson.Parse(raw)
	return res.Get("clicked").Bool(), res.Get("selector").String()
}

// BlockedScripts lists script tags carrying consent-gated attributes, for
// visibility into what a CMP is holding back.
func (i *Interactor) BlockedScripts(ctx context.Context) []string {
	raw, err := i.page.Evaluate(ctx, blockedScriptsJS)
	if err != nil {
		return nil
	}
	var out []string
	for _, v := range gjson.Parse(raw).Array() {
		out = append(out, v.String())
	}
	return out
}

// genericBannerSelectors are checked when no vendor global matched; a hit
// requires a visible bounding box.
var genericBannerSelectors = []string{
	"#onetrust-banner-sdk",
	"#CybotCookiebotDialog",
	"#usercentrics-root",
	"#didomi-host",
	"#qc-cmp2-container",
	"#cookie-banner",
	"#cookiebanner",
	"#cookie-consent",
	"#cookie-notice",
	"#gdpr-banner",
	".cookie-banner",
	".cookie-consent",
	".cc-window",
	".cmp-container",
	"[aria-label*='cookie' i]",
	"[class*='consent-banner']",
	"[id*='cookie-popup']",
}

func probeScript() string {
	banners, _ := json.Marshal(genericBannerSelectors)
	return fmt.Sprintf(probeJS, banners)
}

// probeJS collects raw CMP state in one pass. Every sub-probe is wrapped
// so a throwing vendor API cannot poison the rest of the payload.
const probeJS = `(() => {
	const out = { globals: {}, banners: [], blockedScripts: [] };
	const t = (f) => { try { f(); } catch (e) {} };

	t(() => {
		const cb = window.Cookiebot;
		if (cb && typeof cb === 'object' && 'consent' in cb) {
			out.globals.cookiebot = {
				hasResponse: !!cb.hasResponse,
				consent: cb.consent ? {
					necessary: !!cb.consent.necessary,
					preferences: !!cb.consent.preferences,
					statistics: !!cb.consent.statistics,
					marketing: !!cb.consent.marketing,
				} : null,
			};
		}
	});
	t(() => {
		if (window.OneTrust || window.Optanon) {
			out.globals.onetrust = { activeGroups: window.OnetrustActiveGroups || '' };
		}
	});
	t(() => { if (window.UC_UI || window.usercentrics) out.globals.usercentrics = true; });
	t(() => {
		const d = window.Didomi;
		if (d) {
			let purposes = [];
			try {
				const s = d.getUserStatus();
				purposes = (s && s.purposes && s.purposes.consent && s.purposes.consent.enabled) || [];
			} catch (e) {}
			out.globals.didomi = { purposes: purposes };
		}
	});
	t(() => { if (window.truste || window.trustarc) out.globals.trustarc = true; });
	t(() => { if (window.Osano) out.globals.osano = true; });
	t(() => { if (window.complianz || window.cmplz_banner) out.globals.complianz = true; });
	t(() => {
		if (typeof window.getCkyConsent === 'function') {
			let consent = null;
			try {
				const c = window.getCkyConsent();
				if (c && c.categories) consent = c.categories;
			} catch (e) {}
			out.globals.cookieyes = consent ? { consent: consent } : {};
		}
	});
	t(() => { if (window.BorlabsCookie) out.globals.borlabs = true; });
	t(() => { if (window._iub) out.globals.iubenda = true; });
	t(() => { if (window.Termly) out.globals.termly = true; });
	t(() => { if (window.klaro) out.globals.klaro = true; });
	t(() => { if (window.CCM) out.globals.ccm19 = true; });
	t(() => { if (document.querySelector('#qc-cmp2-container')) out.globals.quantcast = true; });
	t(() => { if (typeof window.__tcfapi === 'function' || typeof window.__cmp === 'function') out.globals.tcf = true; });

	const visible = (el) => {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		const cs = getComputedStyle(el);
		return cs.display !== 'none' && cs.visibility !== 'hidden';
	};
	for (const sel of %s) {
		t(() => {
			const el = document.querySelector(sel);
			if (el && visible(el)) out.banners.push(sel);
		});
	}

	t(() => {
		for (const s of document.querySelectorAll('script[type="text/plain"]')) {
			if (s.dataset.cookieconsent || s.dataset.usercentrics || s.dataset.category ||
				s.classList.contains('cmplazyload')) {
				out.blockedScripts.push(s.src || (s.textContent || '').slice(0, 80));
			}
		}
	});

	return out;
})()`

// blockedScriptsJS lists consent-gated script tags on their own, for the
// debugging surface on the report.
const blockedScriptsJS = `(() => {
	const out = [];
	try {
		for (const s of document.querySelectorAll('script[type="text/plain"], script[data-cookieconsent], script[data-usercentrics], script[data-category]')) {
			out.push(s.src || (s.textContent || '').slice(0, 80));
		}
	} catch (e) {}
	return out;
})()`

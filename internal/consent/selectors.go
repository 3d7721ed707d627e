package consent

import (
	"encoding/json"
	"fmt"
)

// acceptSelectors is the ordered candidate list for "accept all" controls.
// Vendor-specific selectors come first, generic patterns last; the first
// visible match is clicked.
var acceptSelectors = []string{
	// Cookiebot
	"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
	"#CybotCookiebotDialogBodyButtonAccept",
	// OneTrust
	"#onetrust-accept-btn-handler",
	".onetrust-accept-btn-handler",
	// Usercentrics
	"[data-testid='uc-accept-all-button']",
	"#uc-btn-accept-banner",
	// Didomi
	"#didomi-notice-agree-button",
	// Quantcast
	".qc-cmp2-summary-buttons button[mode='primary']",
	// TrustArc
	"#truste-consent-button",
	// Osano
	".osano-cm-accept-all",
	// Complianz
	".cmplz-accept",
	// CookieYes
	".cky-btn-accept",
	// Borlabs
	"a[data-cookie-accept-all]",
	// Iubenda
	".iubenda-cs-accept-btn",
	// Termly
	"[data-tid='banner-accept']",
	// Klaro
	".cm-btn-success",
	".klaro .cm-btn-accept-all",
	// CCM19
	".ccm--save-settings[data-full-consent]",
	// Generic patterns
	"#acceptAllCookies",
	"#accept-all-cookies",
	"#cookie-accept-all",
	"button[id*='accept-all']",
	"button[class*='accept-all']",
	"button[id*='acceptAll']",
	"[aria-label='Accept all']",
	"[aria-label='Accept all cookies']",
	"button[title='Accept all']",
	".cc-allow",
	".cc-btn.cc-accept-all",
	"button[data-role='acceptAll']",
	"button[data-accept-action]",
}

func acceptScript() string {
	sels, _ := json.Marshal(acceptSelectors)
	return fmt.Sprintf(acceptJS, sels)
}

const acceptJS = `(() => {
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		const cs = getComputedStyle(el);
		return cs.display !== 'none' && cs.visibility !== 'hidden';
	};
	for (const sel of %s) {
		try {
			const el = document.querySelector(sel);
			if (el && visible(el)) {
				el.click();
				return { clicked: true, selector: sel };
			}
		} catch (e) {}
	}
	return { clicked: false, selector: '' };
})()`

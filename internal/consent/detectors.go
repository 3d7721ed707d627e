package consent

import (
	"strings"

	"github.com/tidwall/gjson"

	"consentscan/pkg/model"
)

// detector inspects the raw probe state and returns a CMP state when its
// platform is recognised, nil otherwise. Detectors are pure functions so
// the priority order alone decides the outcome.
type detector struct {
	name  string
	check func(probe gjson.Result) *model.CMPState
}

// detectorTable is evaluated in order and the first match wins. Named
// vendor globals come first, then the generic banner fallback, then the
// blocked-script heuristic. The order is fixed: it affects verdict
// reproducibility.
var detectorTable = []detector{
	{"cookiebot", detectCookiebot},
	{"onetrust", detectOneTrust},
	{"usercentrics", simpleGlobal("usercentrics", "Usercentrics")},
	{"didomi", detectDidomi},
	{"trustarc", simpleGlobal("trustarc", "TrustArc")},
	{"osano", simpleGlobal("osano", "Osano")},
	{"complianz", simpleGlobal("complianz", "Complianz")},
	{"cookieyes", detectCookieYes},
	{"borlabs", simpleGlobal("borlabs", "Borlabs Cookie")},
	{"iubenda", simpleGlobal("iubenda", "Iubenda")},
	{"termly", simpleGlobal("termly", "Termly")},
	{"klaro", simpleGlobal("klaro", "Klaro")},
	{"ccm19", simpleGlobal("ccm19", "CCM19")},
	{"quantcast", detectQuantcast},
	{"tcf", detectTCF},
	{"generic-banner", detectGenericBanner},
	{"blocked-scripts", detectBlockedScripts},
}

// Detect runs the detector table over a probe payload and returns the
// first match, or {detected:false} when nothing matches.
func Detect(probeJSON string) model.CMPState {
	probe := gjson.Parse(probeJSON)
	for i := range detectorTable {
		if st := detectorTable[i].check(probe); st != nil {
			if bs := probe.Get("blockedScripts"); bs.IsArray() {
				for _, s := range bs.Array() {
					st.BlockedScripts = append(st.BlockedScripts, s.String())
				}
			}
			return *st
		}
	}
	return model.CMPState{Detected: false}
}

func detectCookiebot(probe gjson.Result) *model.CMPState {
	cb := probe.Get("globals.cookiebot")
	if !cb.Exists() {
		return nil
	}
	st := &model.CMPState{Detected: true, Type: "Cookiebot"}
	st.HasResponse = cb.Get("hasResponse").Bool()
	if c := cb.Get("consent"); c.Exists() {
		st.Consent = &model.ConsentPurposes{
			Necessary:   c.Get("necessary").Bool(),
			Preferences: c.Get("preferences").Bool(),
			Statistics:  c.Get("statistics").Bool(),
			Marketing:   c.Get("marketing").Bool(),
		}
	}
	return st
}

func detectOneTrust(probe gjson.Result) *model.CMPState {
	ot := probe.Get("globals.onetrust")
	if !ot.Exists() {
		return nil
	}
	st := &model.CMPState{Detected: true, Type: "OneTrust"}
	groups := ot.Get("activeGroups").String()
	if groups != "" {
		st.HasResponse = true
		// ",C0001,C0003," — category codes joined by commas.
		st.Consent = &model.ConsentPurposes{
			Necessary:   strings.Contains(groups, "C0001"),
			Statistics:  strings.Contains(groups, "C0002"),
			Preferences: strings.Contains(groups, "C0003"),
			Marketing:   strings.Contains(groups, "C0004"),
		}
	}
	return st
}

func detectDidomi(probe gjson.Result) *model.CMPState {
	d := probe.Get("globals.didomi")
	if !d.Exists() {
		return nil
	}
	st := &model.CMPState{Detected: true, Type: "Didomi"}
	if p := d.Get("purposes"); p.IsArray() && len(p.Array()) > 0 {
		st.HasResponse = true
		has := func(id string) bool {
			for _, v := range p.Array() {
				if v.String() == id {
					return true
				}
			}
			return false
		}
		st.Consent = &model.ConsentPurposes{
			Necessary:   true,
			Statistics:  has("measure_content_performance") || has("analytics"),
			Marketing:   has("advertising") || has("marketing"),
			Preferences: has("personalization"),
		}
	}
	return st
}

func detectCookieYes(probe gjson.Result) *model.CMPState {
	cy := probe.Get("globals.cookieyes")
	if !cy.Exists() {
		return nil
	}
	st := &model.CMPState{Detected: true, Type: "CookieYes"}
	if c := cy.Get("consent"); c.Exists() {
		st.HasResponse = true
		st.Consent = &model.ConsentPurposes{
			Necessary:   c.Get("necessary").Bool(),
			Preferences: c.Get("functional").Bool(),
			Statistics:  c.Get("analytics").Bool(),
			Marketing:   c.Get("advertisement").Bool(),
		}
	}
	return st
}

func detectQuantcast(probe gjson.Result) *model.CMPState {
	if !probe.Get("globals.quantcast").Bool() {
		return nil
	}
	return &model.CMPState{Detected: true, Type: "Quantcast Choice"}
}

// detectTCF catches any remaining IAB TCF implementation after the named
// vendors above had their chance.
func detectTCF(probe gjson.Result) *model.CMPState {
	if !probe.Get("globals.tcf").Bool() {
		return nil
	}
	return &model.CMPState{Detected: true, Type: "TCF"}
}

func detectGenericBanner(probe gjson.Result) *model.CMPState {
	banners := probe.Get("banners")
	if !banners.IsArray() || len(banners.Array()) == 0 {
		return nil
	}
	return &model.CMPState{Detected: true, Type: "generic-banner"}
}

func detectBlockedScripts(probe gjson.Result) *model.CMPState {
	bs := probe.Get("blockedScripts")
	if !bs.IsArray() || len(bs.Array()) == 0 {
		return nil
	}
	return &model.CMPState{Detected: true, Type: "script-blocking"}
}

// simpleGlobal builds a presence-only detector for vendors where the probe
// reports just a boolean.
func simpleGlobal(key, typ string) func(gjson.Result) *model.CMPState {
	path := "globals." + key
	return func(probe gjson.Result) *model.CMPState {
		if !probe.Get(path).Bool() {
			return nil
		}
		return &model.CMPState{Detected: true, Type: typ}
	}
}

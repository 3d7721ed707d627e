package scan

import (
	"testing"
	"time"

	"consentscan/internal/classify"
	"consentscan/internal/interact"
	"consentscan/pkg/model"
)

func sessionWith(pre, post []model.NetworkEvent, cmp model.CMPState) *Session {
	s := NewSession(model.ScanConfig{URL: "https://example.com"}, newFakePage())
	s.pre = pre
	s.post = post
	s.cmpSt = cmp
	return s
}

func TestVerdictNonCompliantBeatsCMP(t *testing.T) {
	pre := []model.NetworkEvent{{
		Vendor:    "Facebook Pixel",
		Category:  classify.CategoryAdvertising,
		EventName: "PageView",
		URL:       "https://www.facebook.com/tr?ev=PageView",
	}}
	s := sessionWith(pre, nil, model.CMPState{Detected: true, Type: "Cookiebot"})

	report := buildReport(s, time.Now(), false, "")
	if report.Verdict != model.VerdictNonCompliant {
		t.Fatalf("expected NON_COMPLIANT, got %s", report.Verdict)
	}
	if len(report.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(report.Violations))
	}
}

func TestVerdictCompliantRequiresCMP(t *testing.T) {
	s := sessionWith(nil, nil, model.CMPState{Detected: true, Type: "OneTrust"})
	if report := buildReport(s, time.Now(), false, ""); report.Verdict != model.VerdictCompliant {
		t.Fatalf("expected COMPLIANT, got %s", report.Verdict)
	}

	s = sessionWith(nil, nil, model.CMPState{})
	if report := buildReport(s, time.Now(), false, ""); report.Verdict != model.VerdictNeedsReview {
		t.Fatalf("expected NEEDS_REVIEW, got %s", report.Verdict)
	}
}

func TestEssentialCMPTrafficIsNotAViolation(t *testing.T) {
	pre := []model.NetworkEvent{{
		Vendor:   "Cookiebot",
		Category: classify.CategoryCMP,
		URL:      "https://consent.cookiebot.com/uc.js",
	}}
	s := sessionWith(pre, nil, model.CMPState{Detected: true, Type: "Cookiebot"})

	report := buildReport(s, time.Now(), false, "")
	if len(report.Violations) != 0 {
		t.Fatalf("cmp traffic must not count as a violation: %+v", report.Violations)
	}
	if report.Verdict != model.VerdictCompliant {
		t.Fatalf("expected COMPLIANT, got %s", report.Verdict)
	}
}

func TestPostConsentTrafficNeverViolates(t *testing.T) {
	post := []model.NetworkEvent{
		{Vendor: "GA4", Category: classify.CategoryAnalytics, EventName: "page_view", Phase: model.PostConsent},
		{Vendor: "Facebook Pixel", Category: classify.CategoryAdvertising, EventName: "Purchase", Phase: model.PostConsent},
	}
	s := sessionWith(nil, post, model.CMPState{Detected: true, Type: "Usercentrics"})

	report := buildReport(s, time.Now(), false, "")
	if len(report.Violations) != 0 {
		t.Fatalf("post-consent traffic must not violate: %+v", report.Violations)
	}
}

func TestSummaryAggregatesBothPhases(t *testing.T) {
	pre := []model.NetworkEvent{
		{Vendor: "GA4", Category: classify.CategoryAnalytics},
		{Vendor: "GA4", Category: classify.CategoryAnalytics},
	}
	post := []model.NetworkEvent{
		{Vendor: "GA4", Category: classify.CategoryAnalytics},
		{Vendor: "Hotjar", Category: classify.CategorySessionReplay},
	}

	sum := summarize(pre, post)
	if sum.TotalPreConsent != 2 || sum.TotalPostConsent != 2 {
		t.Fatalf("totals wrong: %+v", sum)
	}
	if sum.ByVendor["GA4"] != 3 || sum.ByVendor["Hotjar"] != 1 {
		t.Fatalf("vendor counts wrong: %+v", sum.ByVendor)
	}
	if sum.ByCategory[classify.CategoryAnalytics] != 3 {
		t.Fatalf("category counts wrong: %+v", sum.ByCategory)
	}
}

func TestReportCarriesDiscoveredForms(t *testing.T) {
	s := sessionWith(nil, nil, model.CMPState{Detected: true, Type: "Cookiebot"})
	s.setForms([]interact.FormInfo{
		{Index: 0, Type: interact.FormNewsletter, Visible: true, FieldLabels: []string{"email"}},
		{Index: 1, Type: interact.FormLogin, Visible: false},
	})

	report := buildReport(s, time.Now(), false, "")
	if len(report.Forms) != 2 {
		t.Fatalf("expected 2 forms on report, got %+v", report.Forms)
	}
	if report.Forms[0].Type != "newsletter" || !report.Forms[0].Visible || report.Forms[0].FieldLabels[0] != "email" {
		t.Fatalf("form summary wrong: %+v", report.Forms[0])
	}
	if report.Forms[1].Type != "login" {
		t.Fatalf("form summary wrong: %+v", report.Forms[1])
	}
}

func TestFailedReportKeepsPartialCapture(t *testing.T) {
	pre := []model.NetworkEvent{{Vendor: "GA4", Category: classify.CategoryAnalytics, EventName: "page_view"}}
	s := sessionWith(pre, nil, model.CMPState{})

	report := buildReport(s, time.Now().Add(-2*time.Second), true, "scan timed out")
	if !report.Failed || report.Error != "scan timed out" {
		t.Fatalf("failure not recorded: %+v", report)
	}
	if len(report.Events.PreConsent) != 1 {
		t.Fatalf("partial capture lost: %+v", report.Events)
	}
	if report.DurationMS < 2000 {
		t.Fatalf("expected duration >= 2000ms, got %d", report.DurationMS)
	}
	if report.ReportID == "" {
		t.Fatalf("report id missing")
	}
}

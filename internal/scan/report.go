package scan

import (
	"time"

	"github.com/google/uuid"

	"consentscan/internal/classify"
	"consentscan/pkg/model"
)

// buildReport assembles the consumer-facing report from the capture
// buffers and the final CMP state. A violation is recorded iff a
// non-essential tracker event was observed pre-consent.
func buildReport(s *Session, started time.Time, failed bool, errMsg string) *model.ComplianceReport {
	pre, post := s.buffers()
	cookiesPre, cookiesPost := s.cookies()

	violations := collectViolations(pre)

	verdict := model.VerdictNeedsReview
	switch {
	case len(violations) > 0:
		verdict = model.VerdictNonCompliant
	case s.cmpState().Detected:
		verdict = model.VerdictCompliant
	}

	mode := "full"
	if s.cfg.FastMode {
		mode = "fast"
	}

	return &model.ComplianceReport{
		ReportID: model.ReportID(uuid.NewString()),
		URL:      s.cfg.URL,
		CMP:      s.cmpState(),
		Events: model.PhaseEvents{
			PreConsent:  pre,
			PostConsent: post,
		},
		Cookies: model.CookieSet{
			PreConsent:  cookiesPre,
			PostConsent: cookiesPost,
		},
		Forms:      s.formRecords(),
		Summary:    summarize(pre, post),
		Violations: violations,
		Verdict:    verdict,
		ScanMode:   mode,
		Failed:     failed,
		Error:      errMsg,
		ScannedAt:  started.UnixMilli(),
		DurationMS: time.Since(started).Milliseconds(),
	}
}

func collectViolations(pre []model.NetworkEvent) []model.Violation {
	violations := []model.Violation{}
	for _, ev := range pre {
		if classify.IsEssential(ev.Category) {
			continue
		}
		violations = append(violations, model.Violation{
			Vendor:    ev.Vendor,
			Category:  ev.Category,
			EventName: ev.EventName,
			URL:       ev.URL,
			Timestamp: ev.Timestamp,
		})
	}
	return violations
}

func summarize(pre, post []model.NetworkEvent) model.ReportSummary {
	sum := model.ReportSummary{
		TotalPreConsent:  len(pre),
		TotalPostConsent: len(post),
		ByVendor:         map[string]int{},
		ByCategory:       map[string]int{},
	}
	for _, ev := range pre {
		sum.ByVendor[ev.Vendor]++
		sum.ByCategory[ev.Category]++
	}
	for _, ev := range post {
		sum.ByVendor[ev.Vendor]++
		sum.ByCategory[ev.Category]++
	}
	return sum
}

package store

import (
	"errors"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"consentscan/pkg/model"
)

func report(id string) *model.ComplianceReport {
	return &model.ComplianceReport{
		ReportID: model.ReportID(id),
		URL:      "https://" + id + ".example",
		Verdict:  model.VerdictNeedsReview,
	}
}

func TestReportStorePutGet(t *testing.T) {
	s := NewReportStore(Options{})
	s.Put(report("r1"))

	got, err := s.Get("r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.URL != "https://r1.example" {
		t.Fatalf("wrong report: %+v", got)
	}
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReportStoreCapacityEvictsOldest(t *testing.T) {
	s := NewReportStore(Options{Capacity: 2})
	s.Put(report("a"))
	s.Put(report("b"))
	s.Put(report("c"))

	if _, err := s.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("oldest should be evicted, got %v", err)
	}
	if _, err := s.Get("b"); err != nil {
		t.Fatalf("b should survive: %v", err)
	}
	if _, err := s.Get("c"); err != nil {
		t.Fatalf("c should survive: %v", err)
	}
}

func TestReportStoreTTLExpiry(t *testing.T) {
	s := NewReportStore(Options{TTL: time.Minute})
	clock := time.Now()
	s.now = func() time.Time { return clock }

	s.Put(report("r1"))
	clock = clock.Add(2 * time.Minute)

	if _, err := s.Get("r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired report should be gone, got %v", err)
	}
	if got := s.List(); len(got) != 0 {
		t.Fatalf("expired report still listed: %+v", got)
	}
}

func TestAppendFormTestIsAppendOnly(t *testing.T) {
	s := NewReportStore(Options{})
	r := report("r1")
	r.Verdict = model.VerdictCompliant
	s.Put(r)

	out, err := s.AppendFormTest("r1", map[string]any{"formType": "newsletter", "tracked": true})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if gjson.Get(out, "verdict").String() != "COMPLIANT" {
		t.Fatalf("existing field changed: %s", out)
	}
	if gjson.Get(out, "formTests.0.formType").String() != "newsletter" {
		t.Fatalf("form test not appended: %s", out)
	}

	// A second append lands behind the first.
	out2, err := s.AppendFormTest("r1", map[string]any{"formType": "login"})
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if gjson.Get(out2, "formTests.#").Int() != 2 {
		t.Fatalf("appends must accumulate: %s", out2)
	}
	if gjson.Get(out2, "formTests.1.formType").String() != "login" {
		t.Fatalf("second append misplaced: %s", out2)
	}

	if _, err := s.AppendFormTest("missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReportStoreListOrder(t *testing.T) {
	s := NewReportStore(Options{})
	s.Put(report("a"))
	s.Put(report("b"))

	got := s.List()
	if len(got) != 2 || got[0].ReportID != "a" || got[1].ReportID != "b" {
		t.Fatalf("wrong order: %+v", got)
	}
}

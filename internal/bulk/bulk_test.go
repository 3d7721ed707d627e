package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"consentscan/internal/store"
	"consentscan/pkg/model"
)

func newStores() (*store.ReportStore, *store.BatchStore) {
	return store.NewReportStore(store.Options{}), store.NewBatchStore(store.Options{})
}

func okReport(url string) *model.ComplianceReport {
	return &model.ComplianceReport{
		ReportID: model.ReportID("r-" + url),
		URL:      url,
		Verdict:  model.VerdictCompliant,
		CMP:      model.CMPState{Detected: true, Type: "Cookiebot"},
		Summary: model.ReportSummary{
			TotalPostConsent: 1,
			ByVendor:         map[string]int{"GA4": 1},
			ByCategory:       map[string]int{"analytics": 1},
		},
	}
}

// waitDone polls until the batch reports completed.
func waitDone(t *testing.T, o *Orchestrator, id model.BatchID) model.BulkBatch {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		done, err := o.Done(id)
		if err != nil {
			t.Fatalf("done: %v", err)
		}
		if done {
			b, err := o.batches.Get(id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			return b
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("batch %s never completed", id)
	return model.BulkBatch{}
}

func targets(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://site%d.example", i)
	}
	return out
}

func TestBulkRespectsConcurrencyCap(t *testing.T) {
	reports, batches := newStores()

	var running, peak int64
	scan := func(_ context.Context, cfg model.ScanConfig) *model.ComplianceReport {
		cur := atomic.AddInt64(&running, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&running, -1)
		return okReport(cfg.URL)
	}

	o := New(reports, batches, scan)
	id := o.Submit(targets(10), model.ModeMultiSite)
	if err := o.Start(context.Background(), id, model.ScanConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	b := waitDone(t, o, id)
	if got := atomic.LoadInt64(&peak); got > Concurrency {
		t.Fatalf("observed %d concurrent scans, cap is %d", got, Concurrency)
	}
	if b.Completed != 10 || b.Total != 10 {
		t.Fatalf("counters wrong: completed=%d total=%d", b.Completed, b.Total)
	}
}

func TestBulkSecondStartConflicts(t *testing.T) {
	reports, batches := newStores()

	release := make(chan struct{})
	scan := func(_ context.Context, cfg model.ScanConfig) *model.ComplianceReport {
		<-release
		return okReport(cfg.URL)
	}

	o := New(reports, batches, scan)
	id := o.Submit(targets(4), model.ModeMultiSite)
	if err := o.Start(context.Background(), id, model.ScanConfig{}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := o.Start(context.Background(), id, model.ScanConfig{}); !errors.Is(err, store.ErrBatchLocked) {
		t.Fatalf("expected ErrBatchLocked, got %v", err)
	}
	close(release)
	waitDone(t, o, id)
}

func TestBulkTargetErrorIsIsolated(t *testing.T) {
	reports, batches := newStores()

	scan := func(_ context.Context, cfg model.ScanConfig) *model.ComplianceReport {
		if cfg.URL == "https://site2.example" {
			return &model.ComplianceReport{
				ReportID: "r-failed",
				URL:      cfg.URL,
				Failed:   true,
				Error:    "net::ERR_NAME_NOT_RESOLVED",
			}
		}
		return okReport(cfg.URL)
	}

	o := New(reports, batches, scan)
	id := o.Submit(targets(5), model.ModeMultiSite)
	if err := o.Start(context.Background(), id, model.ScanConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	b := waitDone(t, o, id)
	if b.Completed != 5 {
		t.Fatalf("errored target must still count: completed=%d", b.Completed)
	}
	var errored, completed int
	for _, r := range b.Results {
		switch r.Status {
		case model.TargetError:
			errored++
			if r.Error != "net::ERR_NAME_NOT_RESOLVED" {
				t.Fatalf("error message lost: %+v", r)
			}
		case model.TargetCompleted:
			completed++
		default:
			t.Fatalf("unfinished target: %+v", r)
		}
	}
	if errored != 1 || completed != 4 {
		t.Fatalf("got %d errored, %d completed", errored, completed)
	}
}

func TestBulkPanicBecomesTargetError(t *testing.T) {
	reports, batches := newStores()

	scan := func(_ context.Context, cfg model.ScanConfig) *model.ComplianceReport {
		if cfg.URL == "https://site0.example" {
			panic("tab crashed")
		}
		return okReport(cfg.URL)
	}

	o := New(reports, batches, scan)
	id := o.Submit(targets(2), model.ModeMultiSite)
	if err := o.Start(context.Background(), id, model.ScanConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	b := waitDone(t, o, id)
	if b.Results[0].Status != model.TargetError || b.Results[0].Error == "" {
		t.Fatalf("panic not recorded: %+v", b.Results[0])
	}
	if b.Results[1].Status != model.TargetCompleted {
		t.Fatalf("sibling target affected: %+v", b.Results[1])
	}
}

func TestBulkDeepScanSummary(t *testing.T) {
	reports, batches := newStores()

	scan := func(_ context.Context, cfg model.ScanConfig) *model.ComplianceReport {
		r := okReport(cfg.URL)
		if cfg.URL == "https://site1.example" {
			r.Verdict = model.VerdictNonCompliant
			r.Violations = []model.Violation{{Vendor: "Facebook Pixel", Category: "advertising"}}
			r.Summary.ByVendor = map[string]int{"Facebook Pixel": 1, "GA4": 2}
		}
		return r
	}

	o := New(reports, batches, scan)
	id := o.Submit(targets(3), model.ModeDeepScan)
	if err := o.Start(context.Background(), id, model.ScanConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	b := waitDone(t, o, id)
	if b.Summary == nil {
		t.Fatalf("deep-scan summary missing")
	}
	if b.Summary.TotalViolations != 1 || b.Summary.NonCompliant != 1 {
		t.Fatalf("summary counts wrong: %+v", b.Summary)
	}
	want := []string{"Facebook Pixel", "GA4"}
	if len(b.Summary.Vendors) != len(want) {
		t.Fatalf("vendor union wrong: %v", b.Summary.Vendors)
	}
	for i := range want {
		if b.Summary.Vendors[i] != want[i] {
			t.Fatalf("vendor union wrong: %v", b.Summary.Vendors)
		}
	}
}

func TestBulkMultiSiteHasNoSummary(t *testing.T) {
	reports, batches := newStores()
	o := New(reports, batches, func(_ context.Context, cfg model.ScanConfig) *model.ComplianceReport {
		return okReport(cfg.URL)
	})
	id := o.Submit(targets(2), model.ModeMultiSite)
	if err := o.Start(context.Background(), id, model.ScanConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if b := waitDone(t, o, id); b.Summary != nil {
		t.Fatalf("multi-site batch must not aggregate: %+v", b.Summary)
	}
}

func TestBulkProgressReachesSubscriber(t *testing.T) {
	reports, batches := newStores()
	o := New(reports, batches, func(_ context.Context, cfg model.ScanConfig) *model.ComplianceReport {
		return okReport(cfg.URL)
	})

	id := o.Submit(targets(1), model.ModeMultiSite)
	ch, cancel, err := batches.Subscribe(id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	var events []model.ProgressEvent
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for evt := range ch {
			events = append(events, evt)
			if evt.Completed == evt.Total && evt.Status == model.TargetCompleted {
				return
			}
		}
	}()

	if err := o.Start(context.Background(), id, model.ScanConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, o, id)
	wg.Wait()

	var sawRunning, sawCompleted bool
	for _, evt := range events {
		if evt.Status == model.TargetRunning {
			sawRunning = true
		}
		if evt.Status == model.TargetCompleted && evt.Completed == 1 {
			sawCompleted = true
		}
	}
	if !sawRunning || !sawCompleted {
		t.Fatalf("lifecycle not observed: %+v", events)
	}
}

func TestBulkAvgScanTime(t *testing.T) {
	reports, batches := newStores()
	o := New(reports, batches, func(_ context.Context, cfg model.ScanConfig) *model.ComplianceReport {
		time.Sleep(15 * time.Millisecond)
		return okReport(cfg.URL)
	})
	id := o.Submit(targets(3), model.ModeMultiSite)
	if err := o.Start(context.Background(), id, model.ScanConfig{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if b := waitDone(t, o, id); b.AvgScanTime < 10 {
		t.Fatalf("avg scan time not recorded: %d", b.AvgScanTime)
	}
}

// Package bulk runs many scan sessions against an ordered target list
// under a fixed concurrency cap, recording progress into a shared batch
// record and fanning it out to subscribers.
package bulk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	ilog "consentscan/internal/log"
	"consentscan/internal/store"
	"consentscan/pkg/model"
)

// Concurrency caps simultaneously active sessions per batch. The cap
// bounds browser-tab resource usage; it is not tunable per request.
const Concurrency = 3

// ScanFunc runs one scan session and always returns a report, partial
// on failure.
type ScanFunc func(ctx context.Context, cfg model.ScanConfig) *model.ComplianceReport

// Orchestrator admits targets from a cursor into at most Concurrency
// workers and mirrors each session's lifecycle into the batch record.
type Orchestrator struct {
	reports *store.ReportStore
	batches *store.BatchStore
	scan    ScanFunc
	workers int
}

// New 创建批量扫描调度器
func New(reports *store.ReportStore, batches *store.BatchStore, scan ScanFunc) *Orchestrator {
	return &Orchestrator{
		reports: reports,
		batches: batches,
		scan:    scan,
		workers: Concurrency,
	}
}

// Submit registers a new batch over targets and returns its id. The
// batch stays pending until Start.
func (o *Orchestrator) Submit(targets []string, mode model.BatchMode) model.BatchID {
	id := model.BatchID(uuid.NewString())
	results := make([]model.ScanResult, len(targets))
	for i, url := range targets {
		results[i] = model.ScanResult{URL: url, Status: model.TargetPending}
	}
	o.batches.Create(model.BulkBatch{
		BatchID: id,
		Mode:    mode,
		Status:  "pending",
		Total:   len(targets),
		Results: results,
	})
	ilog.L().Info().Str("batchId", string(id)).Int("targets", len(targets)).Str("mode", string(mode)).Msg("batch submitted")
	return id
}

// Start begins orchestration for a submitted batch. A second start on a
// batch whose run is still in flight returns store.ErrBatchLocked. The
// run itself proceeds in the background; there is no mid-batch
// cancellation, only the per-session timeout.
func (o *Orchestrator) Start(ctx context.Context, id model.BatchID, base model.ScanConfig) error {
	if err := o.batches.TryLock(id); err != nil {
		return err
	}
	batch, err := o.batches.Get(id)
	if err != nil {
		o.batches.Unlock(id)
		return err
	}
	o.batches.Update(id, func(b *model.BulkBatch) model.ProgressEvent {
		b.Status = "running"
		return model.ProgressEvent{Label: "batch started"}
	})
	go o.run(ctx, id, batch, base)
	return nil
}

// Done reports whether the batch has finished its run.
func (o *Orchestrator) Done(id model.BatchID) (bool, error) {
	b, err := o.batches.Get(id)
	if err != nil {
		return false, err
	}
	return b.Status == "completed", nil
}

// run drains the target cursor through a fixed worker pool, then seals
// the batch. The batch unlocks exactly once, here, when every target
// has finished.
func (o *Orchestrator) run(ctx context.Context, id model.BatchID, batch model.BulkBatch, base model.ScanConfig) {
	next := make(chan int)
	go func() {
		defer close(next)
		for i := range batch.Results {
			next <- i
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				o.scanTarget(ctx, id, i, batch.Results[i].URL, base)
			}
		}()
	}
	wg.Wait()

	o.batches.Update(id, func(b *model.BulkBatch) model.ProgressEvent {
		b.Status = "completed"
		b.AvgScanTime = avgScanTime(b.Results)
		if b.Mode == model.ModeDeepScan {
			b.Summary = deepScanSummary(b.Results, o.reports)
		}
		return model.ProgressEvent{Label: "batch completed"}
	})
	o.batches.Unlock(id)
	ilog.L().Info().Str("batchId", string(id)).Int("targets", batch.Total).Msg("batch completed")
}

// scanTarget runs one session and records its outcome. A failure here
// is isolated to this target's result; admission of the remaining
// targets continues regardless.
func (o *Orchestrator) scanTarget(ctx context.Context, id model.BatchID, index int, url string, base model.ScanConfig) {
	defer func() {
		if r := recover(); r != nil {
			ilog.L().Error().Any("panic", r).Str("url", url).Msg("scan panicked")
			o.finishTarget(id, index, model.TargetError, fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	o.batches.Update(id, func(b *model.BulkBatch) model.ProgressEvent {
		b.Results[index].Status = model.TargetRunning
		b.Results[index].StartedAt = time.Now().UnixMilli()
		return model.ProgressEvent{Index: index, URL: url, Status: model.TargetRunning}
	})

	cfg := base
	cfg.URL = url
	cfg.OnPhase = func(phase model.Phase, label string) {
		o.batches.Update(id, func(b *model.BulkBatch) model.ProgressEvent {
			b.Results[index].Phase = phase
			b.Results[index].Label = label
			return model.ProgressEvent{Index: index, URL: url, Phase: phase, Label: label}
		})
	}

	report := o.scan(ctx, cfg)
	if report.Failed {
		o.finishTarget(id, index, model.TargetError, report.Error, report)
		return
	}
	o.finishTarget(id, index, model.TargetCompleted, "", report)
}

// finishTarget seals one result and bumps the completed counter. The
// counter counts finished targets, errored ones included, so the batch
// always reaches completed == total.
func (o *Orchestrator) finishTarget(id model.BatchID, index int, status model.TargetStatus, errMsg string, report *model.ComplianceReport) {
	if report != nil {
		o.reports.Put(report)
	}
	o.batches.Update(id, func(b *model.BulkBatch) model.ProgressEvent {
		r := &b.Results[index]
		r.Status = status
		r.FinishedAt = time.Now().UnixMilli()
		r.Error = errMsg
		if report != nil {
			r.ReportID = report.ReportID
			r.CMP = report.CMP.Type
			r.Violations = len(report.Violations)
			r.Verdict = report.Verdict
			r.Trackers = report.Summary.TotalPreConsent + report.Summary.TotalPostConsent
		}
		if b.Completed < b.Total {
			b.Completed++
		}
		return model.ProgressEvent{Index: index, URL: r.URL, Status: status}
	})
}

func avgScanTime(results []model.ScanResult) int64 {
	var sum, n int64
	for _, r := range results {
		if r.FinishedAt > 0 && r.StartedAt > 0 {
			sum += r.FinishedAt - r.StartedAt
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// deepScanSummary aggregates across the batch: the union of vendors
// seen, total violations, and the count of non-compliant targets.
func deepScanSummary(results []model.ScanResult, reports *store.ReportStore) *model.DeepScanSummary {
	sum := &model.DeepScanSummary{Vendors: []string{}}
	seen := map[string]bool{}
	for _, r := range results {
		sum.TotalViolations += r.Violations
		if r.Verdict == model.VerdictNonCompliant {
			sum.NonCompliant++
		}
		if r.ReportID == "" {
			continue
		}
		report, err := reports.Get(r.ReportID)
		if err != nil {
			continue
		}
		for vendor := range report.Summary.ByVendor {
			if !seen[vendor] {
				seen[vendor] = true
				sum.Vendors = append(sum.Vendors, vendor)
			}
		}
	}
	sort.Strings(sum.Vendors)
	return sum
}

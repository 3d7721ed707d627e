package store

import (
	"errors"
	"testing"

	"consentscan/pkg/model"
)

func batch(id string, total int) model.BulkBatch {
	results := make([]model.ScanResult, total)
	for i := range results {
		results[i] = model.ScanResult{URL: "https://t.example", Status: model.TargetPending}
	}
	return model.BulkBatch{
		BatchID: model.BatchID(id),
		Mode:    model.ModeMultiSite,
		Status:  "pending",
		Total:   total,
		Results: results,
	}
}

func TestBatchStoreLockConflict(t *testing.T) {
	s := NewBatchStore(Options{})
	s.Create(batch("b1", 3))

	if err := s.TryLock("b1"); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if err := s.TryLock("b1"); !errors.Is(err, ErrBatchLocked) {
		t.Fatalf("expected ErrBatchLocked, got %v", err)
	}

	s.Unlock("b1")
	if err := s.TryLock("b1"); err != nil {
		t.Fatalf("relock after unlock: %v", err)
	}
}

func TestBatchStoreUpdateBroadcasts(t *testing.T) {
	s := NewBatchStore(Options{})
	s.Create(batch("b1", 2))

	ch, cancel, err := s.Subscribe("b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	err = s.Update("b1", func(b *model.BulkBatch) model.ProgressEvent {
		b.Results[0].Status = model.TargetRunning
		return model.ProgressEvent{Index: 0, URL: b.Results[0].URL, Status: model.TargetRunning}
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	evt := <-ch
	if evt.BatchID != "b1" || evt.Index != 0 || evt.Status != model.TargetRunning {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.Total != 2 || evt.Completed != 0 {
		t.Fatalf("counters not attached: %+v", evt)
	}

	got, err := s.Get("b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Results[0].Status != model.TargetRunning {
		t.Fatalf("mutation lost: %+v", got.Results[0])
	}
}

func TestBatchStoreSlowSubscriberDropsNotBlocks(t *testing.T) {
	s := NewBatchStore(Options{})
	s.Create(batch("b1", 1))

	_, cancel, err := s.Subscribe("b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Nobody drains the channel; overflow past the buffer must not hang.
	for i := 0; i < subscriberBuffer+8; i++ {
		err := s.Update("b1", func(b *model.BulkBatch) model.ProgressEvent {
			return model.ProgressEvent{Index: 0}
		})
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
}

func TestBatchStoreUnsubscribeStopsDelivery(t *testing.T) {
	s := NewBatchStore(Options{})
	s.Create(batch("b1", 1))

	ch, cancel, err := s.Subscribe("b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	if err := s.Update("b1", func(b *model.BulkBatch) model.ProgressEvent {
		return model.ProgressEvent{Index: 0}
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}
	cancel() // second cancel is a no-op
}

func TestBatchStoreGetSnapshotIsolated(t *testing.T) {
	s := NewBatchStore(Options{})
	s.Create(batch("b1", 1))

	snap, err := s.Get("b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	snap.Results[0].Status = model.TargetError

	again, _ := s.Get("b1")
	if again.Results[0].Status != model.TargetPending {
		t.Fatalf("snapshot mutation leaked into store: %+v", again.Results[0])
	}
}

func TestBatchStoreMissingID(t *testing.T) {
	s := NewBatchStore(Options{})
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.TryLock("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Subscribe("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

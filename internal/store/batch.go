package store

import (
	"sync"
	"time"

	ilog "consentscan/internal/log"
	"consentscan/pkg/model"
)

// subscriberBuffer sizes each subscriber channel. Progress delivery is
// fire-and-forget: a full channel drops the event instead of blocking.
const subscriberBuffer = 64

type batchEntry struct {
	mu      sync.Mutex
	batch   model.BulkBatch
	locked  bool
	subs    map[int]chan model.ProgressEvent
	nextSub int
	addedAt time.Time
}

// BatchStore keeps in-flight and finished batches keyed by batchId.
// Every mutation goes through Update so the change and its broadcast
// stay under the entry lock.
type BatchStore struct {
	mu      sync.RWMutex
	opts    Options
	batches map[model.BatchID]*batchEntry
	order   []model.BatchID

	now func() time.Time
}

// NewBatchStore 创建批次存储
func NewBatchStore(opts Options) *BatchStore {
	return &BatchStore{
		opts:    opts.withDefaults(),
		batches: make(map[model.BatchID]*batchEntry),
		now:     time.Now,
	}
}

// Create registers a new batch record.
func (s *BatchStore) Create(b model.BulkBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	if _, ok := s.batches[b.BatchID]; !ok {
		s.order = append(s.order, b.BatchID)
	}
	s.batches[b.BatchID] = &batchEntry{
		batch:   b,
		subs:    make(map[int]chan model.ProgressEvent),
		addedAt: s.now(),
	}
}

// Get returns a snapshot of the batch for id, or ErrNotFound.
func (s *BatchStore) Get(id model.BatchID) (model.BulkBatch, error) {
	e, err := s.entry(id)
	if err != nil {
		return model.BulkBatch{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.batch), nil
}

// TryLock marks the batch as running. A second lock attempt while the
// first run is in flight returns ErrBatchLocked.
func (s *BatchStore) TryLock(id model.BatchID) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked {
		return ErrBatchLocked
	}
	e.locked = true
	return nil
}

// Unlock releases the batch lock. Called exactly once per run, when
// completed reaches total.
func (s *BatchStore) Unlock(id model.BatchID) {
	e, err := s.entry(id)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.locked = false
	e.mu.Unlock()
}

// Update applies fn to the batch record and broadcasts the returned
// progress event to every subscriber. fn runs under the entry lock.
func (s *BatchStore) Update(id model.BatchID, fn func(b *model.BulkBatch) model.ProgressEvent) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	evt := fn(&e.batch)
	evt.BatchID = id
	evt.Completed = e.batch.Completed
	evt.Total = e.batch.Total
	if evt.Timestamp == 0 {
		evt.Timestamp = s.now().UnixMilli()
	}
	for _, ch := range e.subs {
		select {
		case ch <- evt:
		default:
			ilog.L().Debug().Str("batchId", string(id)).Msg("slow subscriber, progress event dropped")
		}
	}
	return nil
}

// Subscribe registers a progress listener. The returned cancel func
// removes the subscriber and closes its channel.
func (s *BatchStore) Subscribe(id model.BatchID) (<-chan model.ProgressEvent, func(), error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan model.ProgressEvent, subscriberBuffer)
	key := e.nextSub
	e.nextSub++
	e.subs[key] = ch
	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[key]; ok {
			delete(e.subs, key)
			close(ch)
		}
	}
	return ch, cancel, nil
}

func (s *BatchStore) entry(id model.BatchID) (*batchEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.batches[id]
	if !ok || s.now().Sub(e.addedAt) > s.opts.TTL {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *BatchStore) evictLocked() {
	keep := s.order[:0]
	for _, id := range s.order {
		e, ok := s.batches[id]
		if !ok {
			continue
		}
		if s.now().Sub(e.addedAt) > s.opts.TTL {
			delete(s.batches, id)
			continue
		}
		keep = append(keep, id)
	}
	s.order = keep
	for len(s.order) >= s.opts.Capacity && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.batches, oldest)
		ilog.L().Debug().Str("batchId", string(oldest)).Msg("batch evicted")
	}
}

// snapshot deep-copies the slices a caller could otherwise race on.
func snapshot(b model.BulkBatch) model.BulkBatch {
	out := b
	out.Results = append([]model.ScanResult(nil), b.Results...)
	if b.Summary != nil {
		sum := *b.Summary
		sum.Vendors = append([]string(nil), b.Summary.Vendors...)
		out.Summary = &sum
	}
	return out
}

// Package store holds completed reports and in-flight batches in
// bounded in-memory maps. Entries age out by TTL and, past capacity,
// oldest-first. Batch mutations fan out to registered subscribers.
package store

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	ilog "consentscan/internal/log"
	"consentscan/pkg/model"
)

var (
	ErrNotFound    = errors.New("store: not found")
	ErrBatchLocked = errors.New("store: batch locked")
)

// Options bound a store. Zero values fall back to the defaults below.
type Options struct {
	Capacity int
	TTL      time.Duration
}

const (
	defaultCapacity = 200
	defaultTTL      = 60 * time.Minute
)

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = defaultCapacity
	}
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	return o
}

type reportEntry struct {
	report  *model.ComplianceReport
	raw     string // report JSON plus appended form tests, built lazily
	addedAt time.Time
}

// ReportStore keeps completed reports keyed by reportId.
type ReportStore struct {
	mu      sync.RWMutex
	opts    Options
	reports map[model.ReportID]*reportEntry
	order   []model.ReportID

	now func() time.Time
}

// NewReportStore 创建报告存储
func NewReportStore(opts Options) *ReportStore {
	return &ReportStore{
		opts:    opts.withDefaults(),
		reports: make(map[model.ReportID]*reportEntry),
		now:     time.Now,
	}
}

// Put registers a completed report. Reports are read-only afterwards
// except for the append-only form-test extension.
func (s *ReportStore) Put(r *model.ComplianceReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	if _, ok := s.reports[r.ReportID]; !ok {
		s.order = append(s.order, r.ReportID)
	}
	s.reports[r.ReportID] = &reportEntry{report: r, addedAt: s.now()}
}

// Get returns the report for id, or ErrNotFound.
func (s *ReportStore) Get(id model.ReportID) (*model.ComplianceReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.reports[id]
	if !ok || s.now().Sub(e.addedAt) > s.opts.TTL {
		return nil, ErrNotFound
	}
	return e.report, nil
}

// List returns the stored reports, oldest first.
func (s *ReportStore) List() []*model.ComplianceReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ComplianceReport, 0, len(s.order))
	for _, id := range s.order {
		if e, ok := s.reports[id]; ok && s.now().Sub(e.addedAt) <= s.opts.TTL {
			out = append(out, e.report)
		}
	}
	return out
}

// AppendFormTest appends an external form-test result onto the stored
// report JSON without touching any existing field. Appends accumulate
// under a formTests array; the scan fields stay as scanned.
func (s *ReportStore) AppendFormTest(id model.ReportID, result any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.reports[id]
	if !ok || s.now().Sub(e.addedAt) > s.opts.TTL {
		return "", ErrNotFound
	}
	if e.raw == "" {
		raw, err := json.Marshal(e.report)
		if err != nil {
			return "", err
		}
		e.raw = string(raw)
	}
	out, err := sjson.Set(e.raw, "formTests.-1", result)
	if err != nil {
		return "", err
	}
	e.raw = out
	return out, nil
}

// evictLocked drops expired entries, then the oldest until under capacity.
func (s *ReportStore) evictLocked() {
	keep := s.order[:0]
	for _, id := range s.order {
		e, ok := s.reports[id]
		if !ok {
			continue
		}
		if s.now().Sub(e.addedAt) > s.opts.TTL {
			delete(s.reports, id)
			ilog.L().Debug().Str("reportId", string(id)).Msg("report expired")
			continue
		}
		keep = append(keep, id)
	}
	s.order = keep
	for len(s.order) >= s.opts.Capacity && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.reports, oldest)
		ilog.L().Debug().Str("reportId", string(oldest)).Msg("report evicted")
	}
}

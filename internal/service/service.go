// Package service assembles the scan engine behind a single facade:
// browser connector, scan sessions, bulk orchestration, stores, export
// and the optional archive.
package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"consentscan/internal/browser"
	"consentscan/internal/bulk"
	"consentscan/internal/config"
	"consentscan/internal/export"
	ilog "consentscan/internal/log"
	"consentscan/internal/scan"
	"consentscan/internal/storage"
	"consentscan/internal/store"
	"consentscan/pkg/model"
)

// Service 扫描服务实现
type Service struct {
	cfg       *config.Config
	connector *browser.Connector
	reports   *store.ReportStore
	batches   *store.BatchStore
	orch      *bulk.Orchestrator
	archive   *storage.Archive
}

// New 创建扫描服务
func New(cfg *config.Config) (*Service, error) {
	opts := store.Options{
		Capacity: cfg.Store.Capacity,
		TTL:      time.Duration(cfg.Store.TTLMin) * time.Minute,
	}
	s := &Service{
		cfg:       cfg,
		connector: browser.NewConnector(cfg.DevTools.URL),
		reports:   store.NewReportStore(opts),
		batches:   store.NewBatchStore(opts),
	}
	s.orch = bulk.New(s.reports, s.batches, s.runScan)

	if cfg.Archive.Enabled {
		archive, err := storage.Open(cfg.Archive.Dsn, cfg.Archive.Prefix)
		if err != nil {
			return nil, err
		}
		s.archive = archive
	}
	return s, nil
}

// Scan runs one session against cfg.URL, stores the report and returns
// it. Navigation failure and timeout come back as a FAILED report, not
// an error; only browser attachment fails hard.
func (s *Service) Scan(ctx context.Context, cfg model.ScanConfig) (*model.ComplianceReport, error) {
	s.applyDefaults(&cfg)

	page, err := s.connector.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	report := scan.NewSession(cfg, page).Run(ctx)
	s.reports.Put(report)
	s.archiveReport(report)
	return report, nil
}

// GetReport returns a stored report, or store.ErrNotFound.
func (s *Service) GetReport(id model.ReportID) (*model.ComplianceReport, error) {
	return s.reports.Get(id)
}

// ListReports returns the stored reports, oldest first.
func (s *Service) ListReports() []*model.ComplianceReport {
	return s.reports.List()
}

// AppendFormTest appends an external form-test result to a stored
// report and returns the extended report JSON.
func (s *Service) AppendFormTest(id model.ReportID, result any) (string, error) {
	return s.reports.AppendFormTest(id, result)
}

// SubmitBatch registers a batch over targets.
func (s *Service) SubmitBatch(targets []string, mode model.BatchMode) model.BatchID {
	return s.orch.Submit(targets, mode)
}

// StartBatch begins a submitted batch. A second start while the run is
// in flight returns store.ErrBatchLocked.
func (s *Service) StartBatch(ctx context.Context, id model.BatchID, cfg model.ScanConfig) error {
	s.applyDefaults(&cfg)
	return s.orch.Start(ctx, id, cfg)
}

// GetBatch returns a snapshot of the batch record.
func (s *Service) GetBatch(id model.BatchID) (model.BulkBatch, error) {
	return s.batches.Get(id)
}

// BatchDone reports whether the batch has finished.
func (s *Service) BatchDone(id model.BatchID) (bool, error) {
	return s.orch.Done(id)
}

// SubscribeBatch registers a progress listener on a batch.
func (s *Service) SubscribeBatch(id model.BatchID) (<-chan model.ProgressEvent, func(), error) {
	return s.batches.Subscribe(id)
}

// ExportBatch writes the batch in the requested format, "csv" or "json".
func (s *Service) ExportBatch(w io.Writer, id model.BatchID, format string) error {
	b, err := s.batches.Get(id)
	if err != nil {
		return err
	}
	if format == "csv" {
		return export.WriteCSV(w, b)
	}
	return export.WriteJSON(w, b)
}

// ArchiveBatch appends a finished batch to the archive, if enabled.
func (s *Service) ArchiveBatch(id model.BatchID) error {
	if s.archive == nil {
		return nil
	}
	b, err := s.batches.Get(id)
	if err != nil {
		return err
	}
	return s.archive.SaveBatch(b)
}

// Close releases the archive connection.
func (s *Service) Close() error {
	if s.archive == nil {
		return nil
	}
	return s.archive.Close()
}

// runScan is the per-target scan the orchestrator drives. A page that
// cannot be attached is the one unrecoverable case for a target; it
// yields a synthetic FAILED report so the batch accounting stays whole.
func (s *Service) runScan(ctx context.Context, cfg model.ScanConfig) *model.ComplianceReport {
	page, err := s.connector.NewPage(ctx)
	if err != nil {
		ilog.L().Error().Err(err).Str("url", cfg.URL).Msg("browser attach failed")
		return &model.ComplianceReport{
			ReportID:  model.ReportID(uuid.NewString()),
			URL:       cfg.URL,
			Verdict:   model.VerdictNeedsReview,
			Failed:    true,
			Error:     err.Error(),
			ScannedAt: time.Now().UnixMilli(),
		}
	}
	defer page.Close()

	report := scan.NewSession(cfg, page).Run(ctx)
	s.archiveReport(report)
	return report
}

func (s *Service) archiveReport(r *model.ComplianceReport) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveReport(r); err != nil {
		ilog.L().Warn().Err(err).Str("reportId", string(r.ReportID)).Msg("archive write failed")
	}
}

// applyDefaults fills unset session knobs from the process config.
func (s *Service) applyDefaults(cfg *model.ScanConfig) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Duration(s.cfg.Scan.TimeoutSec) * time.Second
	}
	if !cfg.Headless {
		cfg.Headless = s.cfg.Scan.Headless
	}
}

// Package storage appends completed scans and batch summaries to a
// sqlite file. The archive is an audit trail behind the in-memory
// stores; a write failure is logged and the scan result stands.
package storage

import (
	"encoding/json"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	ilog "consentscan/internal/log"
	"consentscan/pkg/model"
)

// ScanRecord is one archived report row. The full report rides along
// as JSON; the indexed columns cover the common queries.
type ScanRecord struct {
	ID         uint   `gorm:"primarykey"`
	ReportID   string `gorm:"uniqueIndex;size:64"`
	URL        string `gorm:"index;size:512"`
	Verdict    string `gorm:"index;size:32"`
	CMP        string `gorm:"size:64"`
	Violations int
	Failed     bool
	ScannedAt  int64
	DurationMS int64
	Report     string `gorm:"type:text"`
	CreatedAt  time.Time
}

// BatchRecord is one archived batch summary row.
type BatchRecord struct {
	ID          uint   `gorm:"primarykey"`
	BatchID     string `gorm:"uniqueIndex;size:64"`
	Mode        string `gorm:"size:32"`
	Total       int
	Completed   int
	AvgScanTime int64
	Summary     string `gorm:"type:text"`
	CreatedAt   time.Time
}

// Archive 扫描历史归档
type Archive struct {
	db *gorm.DB
}

// Open 打开归档数据库并迁移表结构
func Open(dsn, prefix string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: NewGormLogger(ilog.L()),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: prefix,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ScanRecord{}, &BatchRecord{}); err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

// SaveReport appends one completed scan.
func (a *Archive) SaveReport(r *model.ComplianceReport) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return a.db.Create(&ScanRecord{
		ReportID:   string(r.ReportID),
		URL:        r.URL,
		Verdict:    string(r.Verdict),
		CMP:        r.CMP.Type,
		Violations: len(r.Violations),
		Failed:     r.Failed,
		ScannedAt:  r.ScannedAt,
		DurationMS: r.DurationMS,
		Report:     string(raw),
	}).Error
}

// SaveBatch appends one finished batch summary.
func (a *Archive) SaveBatch(b model.BulkBatch) error {
	var summary string
	if b.Summary != nil {
		raw, err := json.Marshal(b.Summary)
		if err != nil {
			return err
		}
		summary = string(raw)
	}
	return a.db.Create(&BatchRecord{
		BatchID:     string(b.BatchID),
		Mode:        string(b.Mode),
		Total:       b.Total,
		Completed:   b.Completed,
		AvgScanTime: b.AvgScanTime,
		Summary:     summary,
	}).Error
}

// RecentReports returns the latest n archived scans, newest first.
func (a *Archive) RecentReports(n int) ([]ScanRecord, error) {
	var records []ScanRecord
	err := a.db.Order("id desc").Limit(n).Find(&records).Error
	return records, err
}

// ReportsByURL returns every archived scan of url, newest first.
func (a *Archive) ReportsByURL(url string) ([]ScanRecord, error) {
	var records []ScanRecord
	err := a.db.Where("url = ?", url).Order("id desc").Find(&records).Error
	return records, err
}

// Close releases the underlying connection.
func (a *Archive) Close() error {
	db, err := a.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

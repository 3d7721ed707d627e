package api

import (
	"context"
	"io"

	"consentscan/internal/config"
	"consentscan/internal/service"
	"consentscan/pkg/model"
)

// Service 服务接口
type Service interface {
	// Scan 扫描单个目标
	Scan(ctx context.Context, cfg model.ScanConfig) (*model.ComplianceReport, error)

	// GetReport 获取扫描报告
	GetReport(id model.ReportID) (*model.ComplianceReport, error)

	// ListReports 列出所有报告
	ListReports() []*model.ComplianceReport

	// AppendFormTest 追加表单测试结果
	AppendFormTest(id model.ReportID, result any) (string, error)

	// SubmitBatch 提交批量扫描
	SubmitBatch(targets []string, mode model.BatchMode) model.BatchID

	// StartBatch 启动批量扫描
	StartBatch(ctx context.Context, id model.BatchID, cfg model.ScanConfig) error

	// GetBatch 获取批次状态
	GetBatch(id model.BatchID) (model.BulkBatch, error)

	// BatchDone 批次是否完成
	BatchDone(id model.BatchID) (bool, error)

	// SubscribeBatch 订阅批次进度
	SubscribeBatch(id model.BatchID) (<-chan model.ProgressEvent, func(), error)

	// ExportBatch 导出批次结果
	ExportBatch(w io.Writer, id model.BatchID, format string) error

	// ArchiveBatch 归档批次结果
	ArchiveBatch(id model.BatchID) error

	// Close 释放资源
	Close() error
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config) (Service, error) {
	return service.New(cfg)
}

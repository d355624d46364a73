package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yuqie6/shopweekly/internal/ai"
	"github.com/yuqie6/shopweekly/internal/repository"
	"github.com/yuqie6/shopweekly/internal/schema"
)

// ReportGenerator 周报生成入口。生产实现是 ai.WeeklyReporter，
// 测试里可换成固定输出的假实现。
type ReportGenerator interface {
	Generate(ctx context.Context, input ai.WeeklyInput) *ai.WeeklyResult
}

// ReportService 周报生成与修正的编排：
// 快照 → 学习上下文 + 文体上下文 → 生成 → 原样落库。
type ReportService struct {
	stores    *repository.StoreRepository
	reports   *repository.ReportRepository
	learning  *LearningService
	style     *StyleService
	generator ReportGenerator
}

// NewReportService 创建编排服务
func NewReportService(
	stores *repository.StoreRepository,
	reports *repository.ReportRepository,
	learning *LearningService,
	style *StyleService,
	generator ReportGenerator,
) *ReportService {
	return &ReportService{
		stores:    stores,
		reports:   reports,
		learning:  learning,
		style:     style,
		generator: generator,
	}
}

// snapshot 取 (店铺, 周) 的权威快照，店铺未知或快照不存在都报错
func (s *ReportService) snapshot(ctx context.Context, storeName, mondayDate string) (*schema.Store, *schema.WeeklyReport, error) {
	store, err := s.stores.GetByName(ctx, storeName)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("未知店铺: %s", storeName)
	}

	report, err := s.reports.Get(ctx, store.ID, mondayDate)
	if err != nil {
		return nil, nil, err
	}
	if report == nil {
		return nil, nil, fmt.Errorf("周报数据不存在: %s %s", storeName, mondayDate)
	}
	return store, report, nil
}

// Generate 为 (店铺, 周) 生成周报。生成结果（包括错误形态的回退内容）
// 原样写入 generated_report，已有的人工修正不受影响。
func (s *ReportService) Generate(ctx context.Context, storeName, mondayDate string) (*ai.WeeklyResult, error) {
	_, report, err := s.snapshot(ctx, storeName, mondayDate)
	if err != nil {
		return nil, err
	}

	input := ai.WeeklyInput{
		StoreName:        storeName,
		MondayDate:       mondayDate,
		DailyReports:     report.DailyReports,
		Topics:           report.Topics,
		ImpactDay:        report.ImpactDay,
		QuantitativeData: report.QuantitativeData,
	}
	if s.learning != nil {
		input.SimilarContext = s.learning.SimilarCases(ctx, ReportContext{
			DailyReports:     report.DailyReports,
			Topics:           report.Topics,
			ImpactDay:        report.ImpactDay,
			QuantitativeData: report.QuantitativeData,
		})
	}
	if s.style != nil {
		input.StyleContext = s.style.Context(0)
	}

	result := s.generator.Generate(ctx, input)

	report.GeneratedReport = result.Report
	if _, err := s.reports.Save(ctx, report); err != nil {
		return nil, fmt.Errorf("保存生成结果失败: %w", err)
	}

	slog.Info("周报已生成",
		"store", storeName,
		"week", mondayDate,
		"consistent", result.Consistency.Consistent,
	)
	return result, nil
}

// RecordCorrection 记录对生成结果的人工修正：修正稿覆盖 modified_report，
// 同时进学习管道。生成稿保持原样，便于事后对照。
func (s *ReportService) RecordCorrection(ctx context.Context, storeName, mondayDate string, modified schema.ModifiedReport) error {
	if modified.IsEmpty() {
		return fmt.Errorf("修正内容为空")
	}

	_, report, err := s.snapshot(ctx, storeName, mondayDate)
	if err != nil {
		return err
	}
	if report.GeneratedReport.IsEmpty() {
		return fmt.Errorf("尚未生成周报，无法记录修正: %s %s", storeName, mondayDate)
	}

	report.ModifiedReport = modified
	if _, err := s.reports.Save(ctx, report); err != nil {
		return fmt.Errorf("保存修正失败: %w", err)
	}

	if s.learning != nil {
		input := ReportContext{
			DailyReports:     report.DailyReports,
			Topics:           report.Topics,
			ImpactDay:        report.ImpactDay,
			QuantitativeData: report.QuantitativeData,
		}
		created, err := s.learning.LearnFromCorrection(ctx, input, report.GeneratedReport, modified)
		if err != nil {
			// 学习失败不回滚修正本身
			slog.Warn("修正学习失败", "store", storeName, "week", mondayDate, "error", err)
		} else {
			slog.Info("修正已记录", "store", storeName, "week", mondayDate, "new_pattern", created)
		}
	}
	return nil
}

// Get 返回 (店铺, 周) 的快照
func (s *ReportService) Get(ctx context.Context, storeName, mondayDate string) (*schema.WeeklyReport, error) {
	_, report, err := s.snapshot(ctx, storeName, mondayDate)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// History 按店铺列出历史周报概要，storeName 为空时列全部
func (s *ReportService) History(ctx context.Context, storeName string) ([]repository.ReportSummary, error) {
	var storeID int64
	if storeName != "" {
		store, err := s.stores.GetByName(ctx, storeName)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, fmt.Errorf("未知店铺: %s", storeName)
		}
		storeID = store.ID
	}
	return s.reports.ListAll(ctx, storeID)
}

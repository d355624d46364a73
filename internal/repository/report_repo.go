package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yuqie6/shopweekly/internal/schema"
	"gorm.io/gorm"
)

// ReportRepository 周报快照仓储。
// 三个 JSON 列的反序列化容错在 schema 的 Scanner 里完成：
// 单个字段损坏只会让该字段退化为空结构，不会让整行读取失败。
type ReportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建周报仓储
func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Get 按 (店铺, 周) 读取快照，不存在返回 nil
func (r *ReportRepository) Get(ctx context.Context, storeID int64, mondayDate string) (*schema.WeeklyReport, error) {
	var report schema.WeeklyReport
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND monday_date = ?", storeID, mondayDate).
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询周报失败: %w", err)
	}
	return &report, nil
}

// Save 按 (店铺, 周) 插入或更新快照，返回是否为更新已有行。
// Timestamp 由这里统一刷新。
func (r *ReportRepository) Save(ctx context.Context, report *schema.WeeklyReport) (bool, error) {
	if report == nil {
		return false, fmt.Errorf("report 不能为空")
	}
	if report.StoreID <= 0 || report.MondayDate == "" {
		return false, fmt.Errorf("周报缺少店铺或周键")
	}

	report.Timestamp = time.Now().UnixMilli()

	var existing schema.WeeklyReport
	err := r.db.WithContext(ctx).
		Select("id").
		Where("store_id = ? AND monday_date = ?", report.StoreID, report.MondayDate).
		First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("查询周报失败: %w", err)
		}
		if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
			return false, fmt.Errorf("创建周报失败: %w", err)
		}
		return false, nil
	}

	report.ID = existing.ID
	err = r.db.WithContext(ctx).
		Model(&schema.WeeklyReport{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"daily_reports_json":    report.DailyReports,
			"topics":                report.Topics,
			"impact_day":            report.ImpactDay,
			"quantitative_data":     report.QuantitativeData,
			"generated_report_json": report.GeneratedReport,
			"modified_report_json":  report.ModifiedReport,
			"timestamp":             report.Timestamp,
		}).Error
	if err != nil {
		return false, fmt.Errorf("更新周报失败: %w", err)
	}
	return true, nil
}

// ReportSummary 历史列表条目：只带有无生成/修正的标记，不展开 JSON
type ReportSummary struct {
	ID           int64  `json:"id"`
	StoreID      int64  `json:"store_id"`
	StoreName    string `json:"store_name"`
	MondayDate   string `json:"monday_date"`
	Timestamp    int64  `json:"timestamp"`
	HasGenerated bool   `json:"has_generated"`
	HasModified  bool   `json:"has_modified"`
}

// ListAll 返回全部快照摘要，storeID 为 0 时不过滤，按周降序
func (r *ReportRepository) ListAll(ctx context.Context, storeID int64) ([]ReportSummary, error) {
	query := r.db.WithContext(ctx).
		Table("weekly_reports").
		Select("weekly_reports.id, weekly_reports.store_id, stores.name AS store_name, " +
			"weekly_reports.monday_date, weekly_reports.timestamp, " +
			"weekly_reports.generated_report_json IS NOT NULL AS has_generated, " +
			"weekly_reports.modified_report_json IS NOT NULL AS has_modified").
		Joins("JOIN stores ON stores.id = weekly_reports.store_id").
		Order("weekly_reports.monday_date DESC")
	if storeID > 0 {
		query = query.Where("weekly_reports.store_id = ?", storeID)
	}

	var summaries []ReportSummary
	if err := query.Scan(&summaries).Error; err != nil {
		return nil, fmt.Errorf("查询周报列表失败: %w", err)
	}
	return summaries, nil
}

// RecentCorrected 返回最近被人工修正过的快照（按最后写入时刻降序）
func (r *ReportRepository) RecentCorrected(ctx context.Context, limit int) ([]schema.WeeklyReport, error) {
	if limit <= 0 {
		limit = 5
	}
	var reports []schema.WeeklyReport
	err := r.db.WithContext(ctx).
		Where("modified_report_json IS NOT NULL").
		Order("timestamp DESC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("查询修正历史失败: %w", err)
	}
	return reports, nil
}

// Count 快照总数
func (r *ReportRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.WeeklyReport{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计周报失败: %w", err)
	}
	return count, nil
}

// CountCorrected 记录过修正的快照数
func (r *ReportRepository) CountCorrected(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&schema.WeeklyReport{}).
		Where("modified_report_json IS NOT NULL").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计修正周报失败: %w", err)
	}
	return count, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yuqie6/shopweekly/internal/schema"
	"gorm.io/gorm"
)

// PatternRepository 修正学习模式仓储
type PatternRepository struct {
	db *gorm.DB
}

// NewPatternRepository 创建学习模式仓储
func NewPatternRepository(db *gorm.DB) *PatternRepository {
	return &PatternRepository{db: db}
}

// Record 记录一次修正。(hash, modified_output) 已存在时视为重复修正：
// 递增 usage_count 并刷新 last_used；否则插入新行。返回是否新建。
func (r *PatternRepository) Record(ctx context.Context, pattern *schema.LearningPattern) (bool, error) {
	if pattern == nil || pattern.InputContextHash == "" {
		return false, fmt.Errorf("学习模式缺少上下文哈希")
	}

	now := time.Now().UnixMilli()

	var existing schema.LearningPattern
	err := r.db.WithContext(ctx).
		Where("input_context_hash = ? AND modified_output_json = ?",
			pattern.InputContextHash, pattern.ModifiedOutput).
		First(&existing).Error
	if err == nil {
		err = r.db.WithContext(ctx).
			Model(&schema.LearningPattern{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"usage_count": existing.UsageCount + 1,
				"last_used":   now,
			}).Error
		if err != nil {
			return false, fmt.Errorf("更新学习模式失败: %w", err)
		}
		pattern.ID = existing.ID
		pattern.UsageCount = existing.UsageCount + 1
		pattern.LastUsed = now
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("查询学习模式失败: %w", err)
	}

	pattern.UsageCount = 1
	pattern.LastUsed = now
	if err := r.db.WithContext(ctx).Create(pattern).Error; err != nil {
		return false, fmt.Errorf("创建学习模式失败: %w", err)
	}
	return true, nil
}

// Count 学习模式总数
func (r *PatternRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.LearningPattern{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计学习模式失败: %w", err)
	}
	return count, nil
}

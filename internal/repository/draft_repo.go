package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/shopweekly/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DraftRepository 草稿单元仓储。
// 单元按 (store_name, monday_date, field_type, field_key) 唯一，
// Upsert 即字段级 last-writer-wins 的落地点。
type DraftRepository struct {
	db *gorm.DB
}

// NewDraftRepository 创建草稿仓储
func NewDraftRepository(db *gorm.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// Upsert 无条件覆盖写入一个草稿单元（值、时间戳、会话归属一起替换）
func (r *DraftRepository) Upsert(ctx context.Context, cell *schema.DraftCell) error {
	if cell == nil {
		return fmt.Errorf("cell 不能为空")
	}
	if cell.StoreName == "" || cell.MondayDate == "" || cell.FieldType == "" {
		return fmt.Errorf("草稿单元缺少寻址键")
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "store_name"}, {Name: "monday_date"},
			{Name: "field_type"}, {Name: "field_key"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"field_value", "last_updated", "session_id"}),
	}).Create(cell).Error
	if err != nil {
		return fmt.Errorf("写入草稿单元失败: %w", err)
	}
	return nil
}

// LatestSince 返回 (店铺, 周) 下排除指定会话后的全部草稿单元，按更新时刻降序。
// 这是轮询客户端发现“别处改了什么”的唯一原语，返回的是全量快照而非增量。
func (r *DraftRepository) LatestSince(ctx context.Context, storeName, mondayDate, excludeSessionID string) ([]schema.DraftCell, error) {
	query := r.db.WithContext(ctx).
		Where("store_name = ? AND monday_date = ?", storeName, mondayDate)
	if excludeSessionID != "" {
		query = query.Where("session_id != ?", excludeSessionID)
	}

	var cells []schema.DraftCell
	if err := query.Order("last_updated DESC").Find(&cells).Error; err != nil {
		return nil, fmt.Errorf("查询草稿单元失败: %w", err)
	}
	return cells, nil
}

// PurgeBefore 删除更新时刻早于 cutoff（毫秒）的草稿单元，返回删除行数。
// 纯粹的存储膨胀控制，不影响正确性。
func (r *DraftRepository) PurgeBefore(ctx context.Context, cutoff int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("last_updated < ?", cutoff).
		Delete(&schema.DraftCell{})
	if result.Error != nil {
		return 0, fmt.Errorf("清理草稿单元失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

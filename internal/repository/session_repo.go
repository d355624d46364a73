package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/shopweekly/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepository 设备会话仓储
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建会话仓储
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert 注册或刷新会话（同一 session_id 整行覆盖）
func (r *SessionRepository) Upsert(ctx context.Context, session *schema.ActiveSession) error {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("会话缺少 session_id")
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(session).Error
	if err != nil {
		return fmt.Errorf("注册会话失败: %w", err)
	}
	return nil
}

// ActiveSince 返回指定店铺下 last_active 晚于 cutoff（毫秒）的会话，最近的在前
func (r *SessionRepository) ActiveSince(ctx context.Context, storeName string, cutoff int64) ([]schema.ActiveSession, error) {
	var sessions []schema.ActiveSession
	err := r.db.WithContext(ctx).
		Where("store_name = ? AND last_active > ?", storeName, cutoff).
		Order("last_active DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("查询活跃会话失败: %w", err)
	}
	return sessions, nil
}

// DeleteBefore 删除 last_active 早于 cutoff（毫秒）的会话，返回删除行数
func (r *SessionRepository) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("last_active < ?", cutoff).
		Delete(&schema.ActiveSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("清理会话失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/shopweekly/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoreRepository 店铺仓储
type StoreRepository struct {
	db *gorm.DB
}

// NewStoreRepository 创建店铺仓储
func NewStoreRepository(db *gorm.DB) *StoreRepository {
	return &StoreRepository{db: db}
}

// EnsureStores 幂等播种店铺（已存在则跳过）
func (r *StoreRepository) EnsureStores(ctx context.Context, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&schema.Store{Name: name}).Error
		if err != nil {
			return fmt.Errorf("初始化店铺 %s 失败: %w", name, err)
		}
	}
	return nil
}

// GetByName 按名称查询店铺，不存在返回 nil
func (r *StoreRepository) GetByName(ctx context.Context, name string) (*schema.Store, error) {
	var store schema.Store
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&store).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询店铺失败: %w", err)
	}
	return &store, nil
}

// GetByID 按 ID 查询店铺，不存在返回 nil
func (r *StoreRepository) GetByID(ctx context.Context, id int64) (*schema.Store, error) {
	var store schema.Store
	err := r.db.WithContext(ctx).First(&store, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询店铺失败: %w", err)
	}
	return &store, nil
}

// List 返回全部店铺（按名称排序）
func (r *StoreRepository) List(ctx context.Context) ([]schema.Store, error) {
	var stores []schema.Store
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&stores).Error; err != nil {
		return nil, fmt.Errorf("查询店铺列表失败: %w", err)
	}
	return stores, nil
}

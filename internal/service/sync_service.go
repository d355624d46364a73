package service

import (
	"context"
	"sync"
	"time"

	"github.com/yuqie6/shopweekly/internal/repository"
	"github.com/yuqie6/shopweekly/internal/schema"
)

// FieldUpdate 某个字段键的最新值及归属
type FieldUpdate struct {
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updated_at"` // 毫秒
	SessionID string `json:"session_id"`
}

// SyncUpdates 字段类型 → 字段键 → 最新值
type SyncUpdates map[string]map[string]FieldUpdate

// SyncService 字段同步引擎 —— “这个字段现在是什么值、谁写的”的唯一权威。
// Publish 是无条件覆盖（字段粒度 last-writer-wins，不做内容合并）；
// LatestSince 是轮询客户端的拉取原语。
type SyncService struct {
	drafts *repository.DraftRepository

	// 仅串行化本进程内的发布写入；跨进程竞争交给存储层的原子 upsert。
	mu sync.Mutex
}

// NewSyncService 创建同步引擎
func NewSyncService(drafts *repository.DraftRepository) *SyncService {
	return &SyncService{drafts: drafts}
}

// Publish 以会话身份覆盖写入一个字段单元。
// 短窗口内两个会话写同一字段时，后到的 Publish 静默获胜。
func (s *SyncService) Publish(ctx context.Context, sessionID, storeName, mondayDate, fieldType, fieldKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell := &schema.DraftCell{
		StoreName:   storeName,
		MondayDate:  mondayDate,
		FieldType:   fieldType,
		FieldKey:    fieldKey,
		FieldValue:  value,
		LastUpdated: time.Now().UnixMilli(),
		SessionID:   sessionID,
	}
	return s.drafts.Upsert(ctx, cell)
}

// LatestSince 返回 (店铺, 周) 下由其他会话写入的全部字段单元，
// 按字段类型、字段键分组。调用方自行与本地值做相等比较来判断“别处有改动”。
func (s *SyncService) LatestSince(ctx context.Context, storeName, mondayDate, excludeSessionID string) (SyncUpdates, error) {
	cells, err := s.drafts.LatestSince(ctx, storeName, mondayDate, excludeSessionID)
	if err != nil {
		return nil, err
	}

	updates := make(SyncUpdates)
	for _, cell := range cells {
		group, ok := updates[cell.FieldType]
		if !ok {
			group = make(map[string]FieldUpdate)
			updates[cell.FieldType] = group
		}
		// 行按更新时刻降序返回；唯一键保证每个字段键只有一行，
		// 这里仍只保留先见（最新）值以防御历史脏数据。
		if _, seen := group[cell.FieldKey]; seen {
			continue
		}
		group[cell.FieldKey] = FieldUpdate{
			Value:     cell.FieldValue,
			UpdatedAt: cell.LastUpdated,
			SessionID: cell.SessionID,
		}
	}
	return updates, nil
}

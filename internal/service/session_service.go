package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/yuqie6/shopweekly/internal/repository"
	"github.com/yuqie6/shopweekly/internal/schema"
)

// 缺省活性窗口（原系统的固定值，可在配置中覆盖）
const (
	DefaultActiveWindow = 5 * time.Minute
	DefaultSessionTTL   = 30 * time.Minute
	DefaultDraftTTL     = 7 * 24 * time.Hour
)

// SessionService 会话注册表 —— 跟踪谁在编辑哪个店铺，
// 供“N 台设备编辑中”展示与同步查询的 exclude 语义使用。
type SessionService struct {
	sessions *repository.SessionRepository
	drafts   *repository.DraftRepository

	activeWindow time.Duration // 视为活跃的窗口
	sessionTTL   time.Duration // 超过即被回收
	draftTTL     time.Duration // 草稿单元保留时长
}

// SessionWindows 活性窗口配置，零值取缺省
type SessionWindows struct {
	ActiveWindow time.Duration
	SessionTTL   time.Duration
	DraftTTL     time.Duration
}

// NewSessionService 创建会话注册表
func NewSessionService(sessions *repository.SessionRepository, drafts *repository.DraftRepository, windows SessionWindows) *SessionService {
	if windows.ActiveWindow <= 0 {
		windows.ActiveWindow = DefaultActiveWindow
	}
	if windows.SessionTTL <= 0 {
		windows.SessionTTL = DefaultSessionTTL
	}
	if windows.DraftTTL <= 0 {
		windows.DraftTTL = DefaultDraftTTL
	}
	return &SessionService{
		sessions:     sessions,
		drafts:       drafts,
		activeWindow: windows.ActiveWindow,
		sessionTTL:   windows.SessionTTL,
		draftTTL:     windows.DraftTTL,
	}
}

// newSessionID 毫秒时间戳 + 设备信息哈希。碰撞只会导致活跃数短暂失真，
// 不会破坏数据，因此不追求全局唯一。
func newSessionID(deviceInfo string) string {
	h := fnv.New32a()
	h.Write([]byte(deviceInfo))
	return fmt.Sprintf("session_%d_%04d", time.Now().UnixMilli(), h.Sum32()%10000)
}

// Register 注册新会话并返回 session_id
func (s *SessionService) Register(ctx context.Context, storeName, deviceInfo string) (string, error) {
	id := newSessionID(deviceInfo)
	err := s.sessions.Upsert(ctx, &schema.ActiveSession{
		SessionID:  id,
		DeviceInfo: deviceInfo,
		StoreName:  storeName,
		LastActive: time.Now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Heartbeat 刷新已有会话（重复注册同一 session_id 即整行覆盖）。
// editingData 是客户端自述的“正在编辑什么”，仅用于展示，服务端不解析。
func (s *SessionService) Heartbeat(ctx context.Context, sessionID, storeName, deviceInfo, editingData string) error {
	if sessionID == "" {
		return fmt.Errorf("session_id 不能为空")
	}
	return s.sessions.Upsert(ctx, &schema.ActiveSession{
		SessionID:   sessionID,
		DeviceInfo:  deviceInfo,
		StoreName:   storeName,
		LastActive:  time.Now().UnixMilli(),
		EditingData: editingData,
	})
}

// ActiveSessions 返回店铺下活跃窗口内的会话，最近的在前
func (s *SessionService) ActiveSessions(ctx context.Context, storeName string) ([]schema.ActiveSession, error) {
	cutoff := time.Now().Add(-s.activeWindow).UnixMilli()
	return s.sessions.ActiveSince(ctx, storeName, cutoff)
}

// SweepResult 一次清扫的删除统计
type SweepResult struct {
	SessionsRemoved int64 `json:"sessions_removed"`
	DraftsRemoved   int64 `json:"drafts_removed"`
}

// Sweep 回收超时会话与过期草稿单元。尽力而为的维护操作：
// 不跑不会破坏数据，只是延迟清理。
func (s *SessionService) Sweep(ctx context.Context) (SweepResult, error) {
	now := time.Now()
	var result SweepResult

	removed, err := s.sessions.DeleteBefore(ctx, now.Add(-s.sessionTTL).UnixMilli())
	if err != nil {
		return result, err
	}
	result.SessionsRemoved = removed

	purged, err := s.drafts.PurgeBefore(ctx, now.Add(-s.draftTTL).UnixMilli())
	if err != nil {
		return result, err
	}
	result.DraftsRemoved = purged

	if result.SessionsRemoved > 0 || result.DraftsRemoved > 0 {
		slog.Info("清扫完成",
			"sessions_removed", result.SessionsRemoved,
			"drafts_removed", result.DraftsRemoved,
		)
	}
	return result, nil
}

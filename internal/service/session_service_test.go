package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yuqie6/shopweekly/internal/repository"
	"github.com/yuqie6/shopweekly/internal/schema"
	"github.com/yuqie6/shopweekly/internal/testutil"
)

func newSessionFixture(t *testing.T) (*SessionService, *repository.SessionRepository, *repository.DraftRepository) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	sessions := repository.NewSessionRepository(db)
	drafts := repository.NewDraftRepository(db)
	svc := NewSessionService(sessions, drafts, SessionWindows{})
	return svc, sessions, drafts
}

func TestSessionIDFormat(t *testing.T) {
	id := newSessionID("iPad Safari")
	if !strings.HasPrefix(id, "session_") {
		t.Errorf("id = %s, want session_ 前缀", id)
	}
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		t.Fatalf("id = %s, want session_<ms>_<hash>", id)
	}
	if len(parts[2]) != 4 {
		t.Errorf("哈希段应为 4 位, got %s", parts[2])
	}
}

func TestRegisterAndActiveSessions(t *testing.T) {
	svc, _, _ := newSessionFixture(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "RAY", "iPad Safari")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if id == "" {
		t.Fatal("session_id 为空")
	}

	active, err := svc.ActiveSessions(ctx, "RAY")
	if err != nil {
		t.Fatalf("ActiveSessions error: %v", err)
	}
	if len(active) != 1 || active[0].SessionID != id {
		t.Errorf("active = %+v", active)
	}

	// 其他店铺看不到
	other, err := svc.ActiveSessions(ctx, "RSJ")
	if err != nil {
		t.Fatalf("ActiveSessions error: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("other = %+v, want 空", other)
	}
}

func TestHeartbeatRequiresID(t *testing.T) {
	svc, _, _ := newSessionFixture(t)
	if err := svc.Heartbeat(context.Background(), "", "RAY", "dev", ""); err == nil {
		t.Error("空 session_id 应报错")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	svc, sessions, drafts := newSessionFixture(t)
	ctx := context.Background()
	now := time.Now()

	// 超时会话与存活会话
	expired := &schema.ActiveSession{SessionID: "s_old", StoreName: "RAY", LastActive: now.Add(-31 * time.Minute).UnixMilli()}
	alive := &schema.ActiveSession{SessionID: "s_new", StoreName: "RAY", LastActive: now.UnixMilli()}
	for _, s := range []*schema.ActiveSession{expired, alive} {
		if err := sessions.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
	}

	// 过期草稿与新鲜草稿
	stale := &schema.DraftCell{StoreName: "RAY", MondayDate: "2024-05-20", FieldType: schema.FieldTopics, FieldKey: "topics", LastUpdated: now.Add(-8 * 24 * time.Hour).UnixMilli()}
	fresh := &schema.DraftCell{StoreName: "RAY", MondayDate: "2024-06-03", FieldType: schema.FieldTopics, FieldKey: "topics", LastUpdated: now.UnixMilli()}
	for _, c := range []*schema.DraftCell{stale, fresh} {
		if err := drafts.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
	}

	result, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep error: %v", err)
	}
	if result.SessionsRemoved != 1 {
		t.Errorf("SessionsRemoved = %d, want 1", result.SessionsRemoved)
	}
	if result.DraftsRemoved != 1 {
		t.Errorf("DraftsRemoved = %d, want 1", result.DraftsRemoved)
	}

	active, err := svc.ActiveSessions(ctx, "RAY")
	if err != nil {
		t.Fatalf("ActiveSessions error: %v", err)
	}
	if len(active) != 1 || active[0].SessionID != "s_new" {
		t.Errorf("active = %+v, want 只剩 s_new", active)
	}
}

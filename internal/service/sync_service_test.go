package service

import (
	"context"
	"testing"

	"github.com/yuqie6/shopweekly/internal/repository"
	"github.com/yuqie6/shopweekly/internal/schema"
	"github.com/yuqie6/shopweekly/internal/testutil"
)

func newTestSync(t *testing.T) *SyncService {
	t.Helper()
	db := testutil.OpenTestDB(t)
	return NewSyncService(repository.NewDraftRepository(db))
}

func TestSyncServicePublishAndFetch(t *testing.T) {
	svc := newTestSync(t)
	ctx := context.Background()

	err := svc.Publish(ctx, "session_a", "RAY", "2024-06-03", schema.FieldDailyTrend, "2024-06-03", "入店好調")
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	updates, err := svc.LatestSince(ctx, "RAY", "2024-06-03", "")
	if err != nil {
		t.Fatalf("LatestSince error: %v", err)
	}
	update, ok := updates[schema.FieldDailyTrend]["2024-06-03"]
	if !ok {
		t.Fatalf("updates = %+v, want daily_trend/2024-06-03", updates)
	}
	if update.Value != "入店好調" || update.SessionID != "session_a" {
		t.Errorf("update = %+v", update)
	}
}

func TestSyncServiceLastWriterWins(t *testing.T) {
	svc := newTestSync(t)
	ctx := context.Background()

	if err := svc.Publish(ctx, "session_a", "RAY", "2024-06-03", schema.FieldTopics, "topics", "A 写的"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := svc.Publish(ctx, "session_b", "RAY", "2024-06-03", schema.FieldTopics, "topics", "B 写的"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	updates, err := svc.LatestSince(ctx, "RAY", "2024-06-03", "")
	if err != nil {
		t.Fatalf("LatestSince error: %v", err)
	}
	update := updates[schema.FieldTopics]["topics"]
	if update.Value != "B 写的" || update.SessionID != "session_b" {
		t.Errorf("后写者应获胜, got %+v", update)
	}
}

func TestSyncServiceFieldIsolation(t *testing.T) {
	svc := newTestSync(t)
	ctx := context.Background()

	// 两个会话写不同字段键，互不覆盖
	if err := svc.Publish(ctx, "session_a", "RAY", "2024-06-03", schema.FieldDailyTrend, "2024-06-03", "月曜の動向"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := svc.Publish(ctx, "session_b", "RAY", "2024-06-03", schema.FieldDailyTrend, "2024-06-04", "火曜の動向"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	updates, err := svc.LatestSince(ctx, "RAY", "2024-06-03", "")
	if err != nil {
		t.Fatalf("LatestSince error: %v", err)
	}
	group := updates[schema.FieldDailyTrend]
	if len(group) != 2 {
		t.Fatalf("len(group) = %d, want 2", len(group))
	}
	if group["2024-06-03"].Value != "月曜の動向" || group["2024-06-04"].Value != "火曜の動向" {
		t.Errorf("group = %+v", group)
	}
}

func TestSyncServiceExcludesOwnSession(t *testing.T) {
	svc := newTestSync(t)
	ctx := context.Background()

	if err := svc.Publish(ctx, "session_a", "RAY", "2024-06-03", schema.FieldTopics, "topics", "自分の編集"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	updates, err := svc.LatestSince(ctx, "RAY", "2024-06-03", "session_a")
	if err != nil {
		t.Fatalf("LatestSince error: %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("自己的编辑不应回流, got %+v", updates)
	}
}

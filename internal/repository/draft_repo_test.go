package repository

import (
	"context"
	"testing"
	"time"

	"github.com/yuqie6/shopweekly/internal/schema"
	"github.com/yuqie6/shopweekly/internal/testutil"
)

func TestDraftRepositoryUpsertOverwrites(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewDraftRepository(db)
	ctx := context.Background()

	cell := &schema.DraftCell{
		StoreName:   "RAY",
		MondayDate:  "2024-06-03",
		FieldType:   schema.FieldDailyTrend,
		FieldKey:    "2024-06-03",
		FieldValue:  "旧值",
		LastUpdated: 1000,
		SessionID:   "session_a",
	}
	if err := repo.Upsert(ctx, cell); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	// 后写者覆盖值、时间戳与会话归属
	newer := &schema.DraftCell{
		StoreName:   "RAY",
		MondayDate:  "2024-06-03",
		FieldType:   schema.FieldDailyTrend,
		FieldKey:    "2024-06-03",
		FieldValue:  "新值",
		LastUpdated: 2000,
		SessionID:   "session_b",
	}
	if err := repo.Upsert(ctx, newer); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	cells, err := repo.LatestSince(ctx, "RAY", "2024-06-03", "")
	if err != nil {
		t.Fatalf("LatestSince error: %v", err)
	}
	if len(cells) != 1 {
		t.Fatalf("len(cells) = %d, want 1", len(cells))
	}
	got := cells[0]
	if got.FieldValue != "新值" || got.LastUpdated != 2000 || got.SessionID != "session_b" {
		t.Errorf("cell = %+v, want 新值/2000/session_b", got)
	}
}

func TestDraftRepositoryExcludesSession(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewDraftRepository(db)
	ctx := context.Background()

	cells := []*schema.DraftCell{
		{StoreName: "RAY", MondayDate: "2024-06-03", FieldType: schema.FieldTopics, FieldKey: "topics", FieldValue: "A 的话题", LastUpdated: 1, SessionID: "session_a"},
		{StoreName: "RAY", MondayDate: "2024-06-03", FieldType: schema.FieldImpactDay, FieldKey: "impact_day", FieldValue: "B 的影响", LastUpdated: 2, SessionID: "session_b"},
	}
	for _, c := range cells {
		if err := repo.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
	}

	got, err := repo.LatestSince(ctx, "RAY", "2024-06-03", "session_a")
	if err != nil {
		t.Fatalf("LatestSince error: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != "session_b" {
		t.Errorf("got = %+v, want 只剩 session_b 的单元", got)
	}
}

func TestDraftRepositoryKeyIsolation(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewDraftRepository(db)
	ctx := context.Background()

	// 不同店铺、不同周、不同字段键互不干扰
	cells := []*schema.DraftCell{
		{StoreName: "RAY", MondayDate: "2024-06-03", FieldType: schema.FieldDailyTrend, FieldKey: "2024-06-03", FieldValue: "v1", LastUpdated: 1},
		{StoreName: "RAY", MondayDate: "2024-06-03", FieldType: schema.FieldDailyTrend, FieldKey: "2024-06-04", FieldValue: "v2", LastUpdated: 1},
		{StoreName: "RSJ", MondayDate: "2024-06-03", FieldType: schema.FieldDailyTrend, FieldKey: "2024-06-03", FieldValue: "v3", LastUpdated: 1},
		{StoreName: "RAY", MondayDate: "2024-06-10", FieldType: schema.FieldDailyTrend, FieldKey: "2024-06-10", FieldValue: "v4", LastUpdated: 1},
	}
	for _, c := range cells {
		if err := repo.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
	}

	got, err := repo.LatestSince(ctx, "RAY", "2024-06-03", "")
	if err != nil {
		t.Fatalf("LatestSince error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(got) = %d, want 2（只含 RAY 2024-06-03 的两个字段键）", len(got))
	}
}

func TestDraftRepositoryPurgeBefore(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewDraftRepository(db)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	old := &schema.DraftCell{StoreName: "RAY", MondayDate: "2024-06-03", FieldType: schema.FieldTopics, FieldKey: "topics", FieldValue: "旧", LastUpdated: now - 1000}
	fresh := &schema.DraftCell{StoreName: "RAY", MondayDate: "2024-06-03", FieldType: schema.FieldImpactDay, FieldKey: "impact_day", FieldValue: "新", LastUpdated: now}
	for _, c := range []*schema.DraftCell{old, fresh} {
		if err := repo.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
	}

	removed, err := repo.PurgeBefore(ctx, now-500)
	if err != nil {
		t.Fatalf("PurgeBefore error: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	left, err := repo.LatestSince(ctx, "RAY", "2024-06-03", "")
	if err != nil {
		t.Fatalf("LatestSince error: %v", err)
	}
	if len(left) != 1 || left[0].FieldValue != "新" {
		t.Errorf("left = %+v, want 只剩新单元", left)
	}
}

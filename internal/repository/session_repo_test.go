package repository

import (
	"context"
	"testing"
	"time"

	"github.com/yuqie6/shopweekly/internal/schema"
	"github.com/yuqie6/shopweekly/internal/testutil"
)

func TestSessionRepositoryActiveWindow(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	now := time.Now()
	sessions := []*schema.ActiveSession{
		{SessionID: "s_recent", StoreName: "RAY", LastActive: now.Add(-4 * time.Minute).UnixMilli()},
		{SessionID: "s_stale", StoreName: "RAY", LastActive: now.Add(-6 * time.Minute).UnixMilli()},
		{SessionID: "s_other_store", StoreName: "RSJ", LastActive: now.UnixMilli()},
	}
	for _, s := range sessions {
		if err := repo.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
	}

	cutoff := now.Add(-5 * time.Minute).UnixMilli()
	active, err := repo.ActiveSince(ctx, "RAY", cutoff)
	if err != nil {
		t.Fatalf("ActiveSince error: %v", err)
	}
	if len(active) != 1 || active[0].SessionID != "s_recent" {
		t.Errorf("active = %+v, want 只有 s_recent", active)
	}
}

func TestSessionRepositoryUpsertRefreshes(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	if err := repo.Upsert(ctx, &schema.ActiveSession{SessionID: "s1", StoreName: "RAY", LastActive: 1000}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if err := repo.Upsert(ctx, &schema.ActiveSession{SessionID: "s1", StoreName: "RAY", LastActive: 2000}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	active, err := repo.ActiveSince(ctx, "RAY", 1500)
	if err != nil {
		t.Fatalf("ActiveSince error: %v", err)
	}
	if len(active) != 1 || active[0].LastActive != 2000 {
		t.Errorf("active = %+v, want last_active=2000", active)
	}
}

func TestSessionRepositoryDeleteBefore(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	now := time.Now()
	sessions := []*schema.ActiveSession{
		{SessionID: "s_expired", StoreName: "RAY", LastActive: now.Add(-31 * time.Minute).UnixMilli()},
		{SessionID: "s_alive", StoreName: "RAY", LastActive: now.UnixMilli()},
	}
	for _, s := range sessions {
		if err := repo.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert error: %v", err)
		}
	}

	removed, err := repo.DeleteBefore(ctx, now.Add(-30*time.Minute).UnixMilli())
	if err != nil {
		t.Fatalf("DeleteBefore error: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

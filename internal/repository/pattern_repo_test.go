package repository

import (
	"context"
	"testing"

	"github.com/yuqie6/shopweekly/internal/schema"
	"github.com/yuqie6/shopweekly/internal/testutil"
)

func TestPatternRepositoryDeduplicates(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewPatternRepository(db)
	ctx := context.Background()

	p1 := &schema.LearningPattern{
		InputContextHash: "hash_a",
		OriginalOutput:   `{"trend":"原文"}`,
		ModifiedOutput:   `{"trend":"修正文"}`,
	}
	created, err := repo.Record(ctx, p1)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if !created {
		t.Fatal("首次记录应新建模式")
	}
	if p1.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", p1.UsageCount)
	}

	// 相同 (哈希, 修正输出) 只递增计数
	p2 := &schema.LearningPattern{
		InputContextHash: "hash_a",
		ModifiedOutput:   `{"trend":"修正文"}`,
	}
	created, err = repo.Record(ctx, p2)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if created {
		t.Error("重复修正不应新建模式")
	}
	if p2.UsageCount != 2 {
		t.Errorf("UsageCount = %d, want 2", p2.UsageCount)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	// 相同输入、不同修正输出是新模式
	p3 := &schema.LearningPattern{
		InputContextHash: "hash_a",
		ModifiedOutput:   `{"trend":"別の修正文"}`,
	}
	created, err = repo.Record(ctx, p3)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if !created {
		t.Error("不同修正输出应新建模式")
	}
}

func TestPatternRepositoryRejectsMissingHash(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewPatternRepository(db)

	if _, err := repo.Record(context.Background(), &schema.LearningPattern{}); err == nil {
		t.Error("缺少哈希应报错")
	}
}

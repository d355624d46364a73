package service

import (
	"context"
	"reflect"
	"testing"

	"github.com/yuqie6/shopweekly/internal/repository"
	"github.com/yuqie6/shopweekly/internal/schema"
	"github.com/yuqie6/shopweekly/internal/testutil"
	"gorm.io/gorm"
)

type draftFixture struct {
	db      *gorm.DB
	stores  *repository.StoreRepository
	reports *repository.ReportRepository
	sync    *SyncService
}

func newDraftFixture(t *testing.T) *draftFixture {
	t.Helper()
	db := testutil.OpenTestDB(t)
	stores := repository.NewStoreRepository(db)
	if err := stores.EnsureStores(context.Background(), []string{"RAY", "RSJ"}); err != nil {
		t.Fatalf("EnsureStores error: %v", err)
	}
	return &draftFixture{
		db:      db,
		stores:  stores,
		reports: repository.NewReportRepository(db),
		sync:    NewSyncService(repository.NewDraftRepository(db)),
	}
}

func (f *draftFixture) newService() *DraftService {
	return NewDraftService(f.stores, f.reports, f.sync)
}

func (f *draftFixture) mustGet(t *testing.T, storeName, monday string) *schema.WeeklyReport {
	t.Helper()
	ctx := context.Background()
	store, err := f.stores.GetByName(ctx, storeName)
	if err != nil || store == nil {
		t.Fatalf("GetByName(%s): %v, %v", storeName, store, err)
	}
	report, err := f.reports.Get(ctx, store.ID, monday)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if report == nil {
		t.Fatalf("快照不存在: %s %s", storeName, monday)
	}
	return report
}

func TestReconcileIdempotent(t *testing.T) {
	f := newDraftFixture(t)
	svc := f.newService()
	ctx := context.Background()

	state := FormState{
		DailyReports: map[string]schema.DayEntry{
			"2024-06-03": {Trend: "好調", Factors: []string{"天気"}},
		},
		Topics: "セール",
	}

	if _, err := svc.Reconcile(ctx, "RAY", "2024-06-03", state); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	first := f.mustGet(t, "RAY", "2024-06-03")

	if _, err := svc.Reconcile(ctx, "RAY", "2024-06-03", state); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	second := f.mustGet(t, "RAY", "2024-06-03")

	// 除时间戳与主键外存储结果不变
	first.Timestamp, second.Timestamp = 0, 0
	if !reflect.DeepEqual(first, second) {
		t.Errorf("重复 Reconcile 结果不同:\nfirst  = %+v\nsecond = %+v", first, second)
	}
}

func TestReconcileEmptyScalarFallsBack(t *testing.T) {
	f := newDraftFixture(t)
	svc := f.newService()
	ctx := context.Background()

	if _, err := svc.Reconcile(ctx, "RAY", "2024-06-03", FormState{Topics: "既存の話題", ImpactDay: "既存の影響"}); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	// 空标量不覆盖已有内容，非空则正常替换
	if _, err := svc.Reconcile(ctx, "RAY", "2024-06-03", FormState{ImpactDay: "新しい影響"}); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	got := f.mustGet(t, "RAY", "2024-06-03")
	if got.Topics != "既存の話題" {
		t.Errorf("Topics = %s, 空值不应覆盖已有内容", got.Topics)
	}
	if got.ImpactDay != "新しい影響" {
		t.Errorf("ImpactDay = %s, want 新しい影響", got.ImpactDay)
	}
}

func TestReconcileDropsInvalidDateKeys(t *testing.T) {
	f := newDraftFixture(t)
	svc := f.newService()
	ctx := context.Background()

	state := FormState{
		DailyReports: map[string]schema.DayEntry{
			"2024-06-03": {Trend: "合法"},
			"not-a-date": {Trend: "残留データ"},
			"2024-13-40": {Trend: "越界日期"},
		},
	}
	if _, err := svc.Reconcile(ctx, "RAY", "2024-06-03", state); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	got := f.mustGet(t, "RAY", "2024-06-03")
	if len(got.DailyReports) != 1 {
		t.Fatalf("len = %d, want 1（只保留合法日期键）: %v", len(got.DailyReports), got.DailyReports)
	}
	if got.DailyReports["2024-06-03"].Trend != "合法" {
		t.Errorf("DailyReports = %v", got.DailyReports)
	}
}

func TestReconcileUnknownStore(t *testing.T) {
	f := newDraftFixture(t)
	svc := f.newService()

	if _, err := svc.Reconcile(context.Background(), "NOPE", "2024-06-03", FormState{}); err == nil {
		t.Error("未知店铺应报错")
	}
}

func TestReconcilePreservesAIReports(t *testing.T) {
	f := newDraftFixture(t)
	svc := f.newService()
	ctx := context.Background()

	// 先落一份带生成与修正结果的快照
	store, _ := f.stores.GetByName(ctx, "RAY")
	seed := &schema.WeeklyReport{
		StoreID:         store.ID,
		MondayDate:      "2024-06-03",
		GeneratedReport: schema.GeneratedReport{Trend: "AI 生成"},
		ModifiedReport:  schema.ModifiedReport{Trend: "人工修正", EditReason: "調整"},
	}
	if _, err := f.reports.Save(ctx, seed); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	if _, err := svc.Reconcile(ctx, "RAY", "2024-06-03", FormState{Topics: "新话题"}); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	got := f.mustGet(t, "RAY", "2024-06-03")
	if got.GeneratedReport.Trend != "AI 生成" || got.ModifiedReport.Trend != "人工修正" {
		t.Errorf("草稿合并不应触碰 AI 输出: %+v", got)
	}
}

func TestUpdateFieldValidation(t *testing.T) {
	f := newDraftFixture(t)
	svc := f.newService()
	ctx := context.Background()

	if err := svc.UpdateField(ctx, "s1", "RAY", "2024-06-03", "bogus_type", "k", "v"); err == nil {
		t.Error("未知字段类型应报错")
	}
	if err := svc.UpdateField(ctx, "s1", "RAY", "2024-06-03", schema.FieldDailyTrend, "not-a-date", "v"); err == nil {
		t.Error("日次字段键不是日期应报错")
	}
}

func TestUpdateFieldPersistsAndPublishes(t *testing.T) {
	f := newDraftFixture(t)
	svc := f.newService()
	ctx := context.Background()

	err := svc.UpdateField(ctx, "session_a", "RAY", "2024-06-03", schema.FieldDailyTrend, "2024-06-03", "入店好調")
	if err != nil {
		t.Fatalf("UpdateField error: %v", err)
	}

	// 快照已落
	got := f.mustGet(t, "RAY", "2024-06-03")
	if got.DailyReports["2024-06-03"].Trend != "入店好調" {
		t.Errorf("快照未更新: %v", got.DailyReports)
	}

	// 同步层可被其他会话看到
	updates, err := f.sync.LatestSince(ctx, "RAY", "2024-06-03", "session_b")
	if err != nil {
		t.Fatalf("LatestSince error: %v", err)
	}
	update := updates[schema.FieldDailyTrend]["2024-06-03"]
	if update.Value != "入店好調" || update.SessionID != "session_a" {
		t.Errorf("update = %+v", update)
	}

	if _, ok := svc.LastSaved("RAY", "2024-06-03"); !ok {
		t.Error("应记录保存时刻")
	}
}

func TestRefreshPicksUpRemoteEdits(t *testing.T) {
	f := newDraftFixture(t)
	ctx := context.Background()

	// 两台设备各持一个协调器实例，共享同一存储
	svcA := f.newService()
	svcB := f.newService()

	// B 先水合出空白表单
	if _, err := svcB.State(ctx, "RAY", "2024-06-03"); err != nil {
		t.Fatalf("State error: %v", err)
	}

	// A 编辑一个字段
	if err := svcA.UpdateField(ctx, "session_a", "RAY", "2024-06-03", schema.FieldDailyTrend, "2024-06-03", "客流强劲"); err != nil {
		t.Fatalf("UpdateField error: %v", err)
	}

	// B 轮询后看到 A 的改动
	changed, err := svcB.Refresh(ctx, "session_b", "RAY", "2024-06-03")
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	update, ok := changed[schema.FieldDailyTrend]["2024-06-03"]
	if !ok {
		t.Fatalf("changed = %+v, want daily_trend/2024-06-03", changed)
	}
	if update.Value != "客流强劲" || update.SessionID != "session_a" {
		t.Errorf("update = %+v", update)
	}

	// 改动已折入 B 的表单状态
	state, err := svcB.State(ctx, "RAY", "2024-06-03")
	if err != nil {
		t.Fatalf("State error: %v", err)
	}
	if state.DailyReports["2024-06-03"].Trend != "客流强劲" {
		t.Errorf("state = %+v", state.DailyReports)
	}

	// 再次轮询没有新改动
	changed, err = svcB.Refresh(ctx, "session_b", "RAY", "2024-06-03")
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("无新改动时应返回空, got %+v", changed)
	}
}

func TestRefreshIgnoresOwnEdits(t *testing.T) {
	f := newDraftFixture(t)
	svc := f.newService()
	ctx := context.Background()

	if err := svc.UpdateField(ctx, "session_a", "RAY", "2024-06-03", schema.FieldTopics, "topics", "自分の編集"); err != nil {
		t.Fatalf("UpdateField error: %v", err)
	}

	changed, err := svc.Refresh(ctx, "session_a", "RAY", "2024-06-03")
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("自己的编辑不应在轮询中回流, got %+v", changed)
	}
}

func TestStateHydratesWholeWeek(t *testing.T) {
	f := newDraftFixture(t)
	svc := f.newService()

	state, err := svc.State(context.Background(), "RAY", "2024-06-03")
	if err != nil {
		t.Fatalf("State error: %v", err)
	}
	if len(state.DailyReports) != 7 {
		t.Errorf("len = %d, want 7（铺满一周）", len(state.DailyReports))
	}
	if _, ok := state.DailyReports["2024-06-09"]; !ok {
		t.Errorf("缺少周日条目: %v", state.DailyReports)
	}
}

func TestEncodeDecodeFactors(t *testing.T) {
	if got := EncodeFactors(nil); got != "[]" {
		t.Errorf("EncodeFactors(nil) = %s, want []", got)
	}
	encoded := EncodeFactors([]string{"天気", "イベント"})
	decoded := decodeFactors(encoded)
	if len(decoded) != 2 || decoded[0] != "天気" {
		t.Errorf("roundtrip = %v", decoded)
	}
	if decodeFactors("{bad") != nil {
		t.Error("坏数据应退化为 nil")
	}
}

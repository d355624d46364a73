package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yuqie6/shopweekly/internal/repository"
	"github.com/yuqie6/shopweekly/internal/schema"
)

// FormState 单个 (店铺, 周) 的表单状态。
// 显式按键分区持有，绝不复用跨店铺的共享结构 —— 这是旧系统
// 串店污染问题的根源，这里从结构上杜绝。
type FormState struct {
	DailyReports     map[string]schema.DayEntry
	Topics           string
	ImpactDay        string
	QuantitativeData string
}

// DraftService 草稿合并与自动保存协调器。
// 本地字段编辑 → 更新表单状态 + Publish + Reconcile；
// 轮询发现别处改动 → 折回表单状态 + Reconcile，
// 保证外部来源的改动不会只停留在同步层而快照滞后。
type DraftService struct {
	stores  *repository.StoreRepository
	reports *repository.ReportRepository
	sync    *SyncService

	mu        sync.Mutex
	states    map[string]*FormState // "店铺|周" → 表单状态
	lastSaved map[string]time.Time  // 面向用户的“已保存”时刻，与快照内部时间戳分开记
}

// NewDraftService 创建协调器
func NewDraftService(stores *repository.StoreRepository, reports *repository.ReportRepository, syncSvc *SyncService) *DraftService {
	return &DraftService{
		stores:    stores,
		reports:   reports,
		sync:      syncSvc,
		states:    make(map[string]*FormState),
		lastSaved: make(map[string]time.Time),
	}
}

func stateKey(storeName, mondayDate string) string {
	return storeName + "|" + mondayDate
}

// CleanDailyReports 只保留日期键合法的条目。
// 外部协作方仍可能递来带旧店铺残留键的陈旧结构，这里按规则静默丢弃，
// 不作为用户错误上报。
func CleanDailyReports(daily map[string]schema.DayEntry) map[string]schema.DayEntry {
	clean := make(map[string]schema.DayEntry, len(daily))
	for key, entry := range daily {
		if !schema.IsISODate(key) {
			continue
		}
		clean[key] = entry
	}
	return clean
}

// Reconcile 把当前表单状态折入 (店铺, 周) 的权威快照。
// 幂等：相同输入重复调用，除时间戳外存储结果不变。
// 这是 daily_reports/topics/impact_day/quantitative_data 的唯一写入路径。
func (s *DraftService) Reconcile(ctx context.Context, storeName, mondayDate string, st FormState) (*schema.WeeklyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcileLocked(ctx, storeName, mondayDate, st)
}

// LastSaved 返回 (店铺, 周) 最近一次自动保存的时刻
func (s *DraftService) LastSaved(storeName, mondayDate string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastSaved[stateKey(storeName, mondayDate)]
	return t, ok
}

// UpdateField 处理一次本地离散字段编辑：更新表单状态、向同步引擎
// 发布该字段、再整体 Reconcile 落快照。发布与落快照是两次独立提交，
// 中间崩溃只会让快照短暂滞后，下次 Reconcile 自然纠正。
func (s *DraftService) UpdateField(ctx context.Context, sessionID, storeName, mondayDate, fieldType, fieldKey, value string) error {
	if !schema.KnownFieldType(fieldType) {
		return fmt.Errorf("未知字段类型: %s", fieldType)
	}
	if (fieldType == schema.FieldDailyTrend || fieldType == schema.FieldDailyFactors) && !schema.IsISODate(fieldKey) {
		return fmt.Errorf("日次字段键不是合法日期: %s", fieldKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.stateLocked(ctx, storeName, mondayDate)
	if err != nil {
		return err
	}
	applyField(st, fieldType, fieldKey, value)

	var pubErr error
	if err := s.sync.Publish(ctx, sessionID, storeName, mondayDate, fieldType, fieldKey, value); err != nil {
		// 同步发布失败不拦住用户继续输入，记录后与保存结果一起上报
		slog.Warn("字段同步发布失败", "store", storeName, "field_type", fieldType, "error", err)
		pubErr = err
	}

	if _, err := s.reconcileLocked(ctx, storeName, mondayDate, *st); err != nil {
		return errors.Join(pubErr, err)
	}
	return pubErr
}

// Refresh 轮询一次“别处的改动”：取其他会话的字段快照，与本地值做
// 相等比较，有差异才折回表单状态并 Reconcile。返回真正变化的字段。
func (s *DraftService) Refresh(ctx context.Context, sessionID, storeName, mondayDate string) (SyncUpdates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.stateLocked(ctx, storeName, mondayDate)
	if err != nil {
		return nil, err
	}

	updates, err := s.sync.LatestSince(ctx, storeName, mondayDate, sessionID)
	if err != nil {
		return nil, err
	}

	changed := make(SyncUpdates)
	for fieldType, group := range updates {
		for fieldKey, update := range group {
			if fieldEquals(st, fieldType, fieldKey, update.Value) {
				continue
			}
			applyField(st, fieldType, fieldKey, update.Value)
			if _, ok := changed[fieldType]; !ok {
				changed[fieldType] = make(map[string]FieldUpdate)
			}
			changed[fieldType][fieldKey] = update
		}
	}

	if len(changed) > 0 {
		if _, err := s.reconcileLocked(ctx, storeName, mondayDate, *st); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// State 返回 (店铺, 周) 当前表单状态的副本（供展示）
func (s *DraftService) State(ctx context.Context, storeName, mondayDate string) (FormState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.stateLocked(ctx, storeName, mondayDate)
	if err != nil {
		return FormState{}, err
	}
	copied := FormState{
		DailyReports:     make(map[string]schema.DayEntry, len(st.DailyReports)),
		Topics:           st.Topics,
		ImpactDay:        st.ImpactDay,
		QuantitativeData: st.QuantitativeData,
	}
	for k, v := range st.DailyReports {
		copied.DailyReports[k] = v
	}
	return copied, nil
}

// stateLocked 惰性水合 (店铺, 周) 的表单状态：
// 先铺满一周 7 天的空条目，再叠加已有快照。调用方必须持有 s.mu。
func (s *DraftService) stateLocked(ctx context.Context, storeName, mondayDate string) (*FormState, error) {
	key := stateKey(storeName, mondayDate)
	if st, ok := s.states[key]; ok {
		return st, nil
	}

	st := &FormState{DailyReports: make(map[string]schema.DayEntry)}
	if dates, err := schema.WeekDates(mondayDate); err == nil {
		for _, d := range dates {
			st.DailyReports[d] = schema.DayEntry{}
		}
	}

	store, err := s.stores.GetByName(ctx, storeName)
	if err != nil {
		return nil, err
	}
	if store != nil {
		snap, err := s.reports.Get(ctx, store.ID, mondayDate)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			for k, v := range snap.DailyReports {
				if schema.IsISODate(k) {
					st.DailyReports[k] = v
				}
			}
			st.Topics = snap.Topics
			st.ImpactDay = snap.ImpactDay
			st.QuantitativeData = snap.QuantitativeData
		}
	}

	s.states[key] = st
	return st, nil
}

// reconcileLocked 与 Reconcile 等价，但假定调用方已持有 s.mu
func (s *DraftService) reconcileLocked(ctx context.Context, storeName, mondayDate string, st FormState) (*schema.WeeklyReport, error) {
	store, err := s.stores.GetByName(ctx, storeName)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("未知店铺: %s", storeName)
	}

	existing, err := s.reports.Get(ctx, store.ID, mondayDate)
	if err != nil {
		return nil, err
	}

	merged := &schema.WeeklyReport{
		StoreID:      store.ID,
		MondayDate:   mondayDate,
		DailyReports: CleanDailyReports(st.DailyReports),
	}

	// 标量字段：传入非空用传入值，否则回退已存值 ——
	// 绝不用尚未填写的空表单字段覆盖已有内容。
	merged.Topics = st.Topics
	merged.ImpactDay = st.ImpactDay
	merged.QuantitativeData = st.QuantitativeData
	if existing != nil {
		if merged.Topics == "" {
			merged.Topics = existing.Topics
		}
		if merged.ImpactDay == "" {
			merged.ImpactDay = existing.ImpactDay
		}
		if merged.QuantitativeData == "" {
			merged.QuantitativeData = existing.QuantitativeData
		}
		// AI 输出原样保留：本操作从不触碰 generated/modified，
		// 只有报告生成与修正流程会改它们。
		merged.GeneratedReport = existing.GeneratedReport
		merged.ModifiedReport = existing.ModifiedReport
	}

	if _, err := s.reports.Save(ctx, merged); err != nil {
		return nil, err
	}
	s.lastSaved[stateKey(storeName, mondayDate)] = time.Now()
	return merged, nil
}

// applyField 把一个字段写进表单状态
func applyField(st *FormState, fieldType, fieldKey, value string) {
	if st.DailyReports == nil {
		st.DailyReports = make(map[string]schema.DayEntry)
	}
	switch fieldType {
	case schema.FieldDailyTrend:
		entry := st.DailyReports[fieldKey]
		entry.Trend = value
		st.DailyReports[fieldKey] = entry
	case schema.FieldDailyFactors:
		entry := st.DailyReports[fieldKey]
		entry.Factors = decodeFactors(value)
		st.DailyReports[fieldKey] = entry
	case schema.FieldTopics:
		st.Topics = value
	case schema.FieldImpactDay:
		st.ImpactDay = value
	case schema.FieldQuantitative:
		st.QuantitativeData = value
	}
}

// fieldEquals 同步层的值与本地表单值是否相等（值相等即视为无变化）
func fieldEquals(st *FormState, fieldType, fieldKey, value string) bool {
	switch fieldType {
	case schema.FieldDailyTrend:
		return st.DailyReports[fieldKey].Trend == value
	case schema.FieldDailyFactors:
		return stringSliceEqual(st.DailyReports[fieldKey].Factors, decodeFactors(value))
	case schema.FieldTopics:
		return st.Topics == value
	case schema.FieldImpactDay:
		return st.ImpactDay == value
	case schema.FieldQuantitative:
		return st.QuantitativeData == value
	}
	return true // 未知字段类型不折入
}

// decodeFactors 要因列表在同步层序列化为 JSON 数组，坏数据退化为空
func decodeFactors(value string) []string {
	if value == "" {
		return nil
	}
	var factors []string
	if err := json.Unmarshal([]byte(value), &factors); err != nil {
		return nil
	}
	return factors
}

// EncodeFactors 把要因列表编码为同步层的序列化形式
func EncodeFactors(factors []string) string {
	if len(factors) == 0 {
		return "[]"
	}
	b, err := json.Marshal(factors)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

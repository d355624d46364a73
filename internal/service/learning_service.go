package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"github.com/yuqie6/shopweekly/internal/ai"
	"github.com/yuqie6/shopweekly/internal/repository"
	"github.com/yuqie6/shopweekly/internal/schema"
)

// ReportContext 一次生成的完整输入上下文。字段顺序和 json 标签
// 构成哈希输入，改动它们会使历史指纹全部失配，不要轻易调整。
type ReportContext struct {
	DailyReports     map[string]schema.DayEntry `json:"daily_reports"`
	Topics           string                     `json:"topics"`
	ImpactDay        string                     `json:"impact_day"`
	QuantitativeData string                     `json:"quantitative_data"`
}

// ContextHash 输入上下文的稳定指纹（SHA-256 十六进制）。
// encoding/json 对 map 按键排序输出，相同内容必得相同哈希。
func ContextHash(input ReportContext) string {
	b, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// LearningService 修正模式学习。修正记录落 SQL（去重计数），
// 向量化客户端配置好时同步进向量库做相似检索，
// 未配置时退化为最近修正案例的摘要 —— 两条路径产出同一种提示词片段。
type LearningService struct {
	patterns *repository.PatternRepository
	reports  *repository.ReportRepository
	embed    *ai.EmbeddingClient

	db         *chromem.DB
	collection *chromem.Collection

	contextLimit int
}

// LearningConfig 配置
type LearningConfig struct {
	RAGPath      string // 向量库存储路径
	ContextLimit int    // 提示词里最多带几条修正案例
}

// NewLearningService 创建学习服务
func NewLearningService(
	patterns *repository.PatternRepository,
	reports *repository.ReportRepository,
	embed *ai.EmbeddingClient,
	cfg *LearningConfig,
) (*LearningService, error) {
	if cfg == nil {
		cfg = &LearningConfig{}
	}
	if cfg.RAGPath == "" {
		cfg.RAGPath = "./data/rag"
	}
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = 5
	}

	if err := os.MkdirAll(cfg.RAGPath, 0755); err != nil {
		return nil, fmt.Errorf("创建向量库目录失败: %w", err)
	}

	db, err := chromem.NewPersistentDB(cfg.RAGPath, false)
	if err != nil {
		return nil, fmt.Errorf("创建向量数据库失败: %w", err)
	}

	collection, err := db.GetOrCreateCollection("corrections", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("创建 collection 失败: %w", err)
	}

	return &LearningService{
		patterns:     patterns,
		reports:      reports,
		embed:        embed,
		db:           db,
		collection:   collection,
		contextLimit: cfg.ContextLimit,
	}, nil
}

// LearnFromCorrection 记录一次人工修正。
// 同一 (输入指纹, 修正输出) 只计数不重复建模式行；
// 首次出现且向量化可用时再进向量库。返回是否为新模式。
func (s *LearningService) LearnFromCorrection(ctx context.Context, input ReportContext, original schema.GeneratedReport, modified schema.ModifiedReport) (bool, error) {
	hash := ContextHash(input)
	if hash == "" {
		return false, fmt.Errorf("输入上下文无法序列化")
	}

	originalJSON, err := json.Marshal(original)
	if err != nil {
		return false, fmt.Errorf("序列化原始输出失败: %w", err)
	}
	modifiedJSON, err := json.Marshal(modified)
	if err != nil {
		return false, fmt.Errorf("序列化修正输出失败: %w", err)
	}

	created, err := s.patterns.Record(ctx, &schema.LearningPattern{
		InputContextHash: hash,
		OriginalOutput:   string(originalJSON),
		ModifiedOutput:   string(modifiedJSON),
		EditReason:       modified.EditReason,
	})
	if err != nil {
		return false, err
	}

	if created {
		if err := s.indexCorrection(ctx, hash, input, modified); err != nil {
			// 索引失败不影响修正本身的记录
			slog.Warn("修正案例索引失败", "error", err)
		}
	}
	return created, nil
}

// indexCorrection 把修正案例写进向量库，未配置向量化时跳过
func (s *LearningService) indexCorrection(ctx context.Context, hash string, input ReportContext, modified schema.ModifiedReport) error {
	if !s.embed.IsConfigured() {
		slog.Debug("向量化未配置，跳过索引")
		return nil
	}

	content := correctionDocument(input, modified)
	embeddings, err := s.embed.Embed(ctx, []string{content})
	if err != nil {
		return fmt.Errorf("生成嵌入失败: %w", err)
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("嵌入结果为空")
	}

	doc := chromem.Document{
		ID:        "correction_" + hash[:16],
		Content:   content,
		Embedding: embeddings[0],
		Metadata: map[string]string{
			"type": "correction",
			"hash": hash,
		},
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("添加文档失败: %w", err)
	}

	slog.Debug("索引修正案例", "hash", hash[:16])
	return nil
}

// correctionDocument 向量库文档正文：输入摘要 + 修正后的表达
func correctionDocument(input ReportContext, modified schema.ModifiedReport) string {
	var b strings.Builder
	if input.Topics != "" {
		fmt.Fprintf(&b, "TOPICS: %s\n", input.Topics)
	}
	if input.QuantitativeData != "" {
		fmt.Fprintf(&b, "定量データ: %s\n", truncateRunes(input.QuantitativeData, 200))
	}
	fmt.Fprintf(&b, "修正後の動向: %s\n", modified.Trend)
	if len(modified.Factors) > 0 {
		fmt.Fprintf(&b, "修正後の要因: %s\n", strings.Join(modified.Factors, " / "))
	}
	if modified.EditReason != "" {
		fmt.Fprintf(&b, "修正理由: %s\n", modified.EditReason)
	}
	return b.String()
}

// SimilarCases 为一次生成组装“过去修正案例”提示词片段。
// 向量检索可用走相似度，否则退化为最近修正的摘要；两者都取不到返回空串。
func (s *LearningService) SimilarCases(ctx context.Context, input ReportContext) string {
	if s.embed.IsConfigured() && s.collection.Count() > 0 {
		if digest := s.similarByVector(ctx, input); digest != "" {
			return digest
		}
	}
	return s.recentDigest(ctx)
}

// similarByVector 向量检索路径，任何失败都静默返回空串让调用方退化
func (s *LearningService) similarByVector(ctx context.Context, input ReportContext) string {
	query := correctionDocument(input, schema.ModifiedReport{})
	embeddings, err := s.embed.Embed(ctx, []string{query})
	if err != nil || len(embeddings) == 0 {
		slog.Warn("查询嵌入失败，退化为最近修正摘要", "error", err)
		return ""
	}

	topK := s.contextLimit
	if n := s.collection.Count(); topK > n {
		topK = n
	}
	results, err := s.collection.QueryEmbedding(ctx, embeddings[0], topK, nil, nil)
	if err != nil {
		slog.Warn("向量检索失败，退化为最近修正摘要", "error", err)
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("【過去の修正事例（類似ケース）】\n以下は過去にユーザーが手動修正したレポートの例。文体や表現の傾向を参考にする。\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n事例%d:\n%s", i+1, r.Content)
	}
	return b.String()
}

// recentDigest 最近 N 条已修正周报的摘要（SQL 路径）
func (s *LearningService) recentDigest(ctx context.Context) string {
	corrected, err := s.reports.RecentCorrected(ctx, s.contextLimit)
	if err != nil {
		slog.Warn("读取最近修正失败", "error", err)
		return ""
	}
	if len(corrected) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("【過去の修正事例】\n以下は過去にユーザーが手動修正したレポートの例。文体や表現の傾向を参考にする。\n")
	for i, report := range corrected {
		fmt.Fprintf(&b, "\n事例%d (%s週):\n", i+1, report.MondayDate)
		fmt.Fprintf(&b, "修正後の動向: %s\n", truncateRunes(report.ModifiedReport.Trend, 100))
		if len(report.ModifiedReport.Factors) > 0 {
			fmt.Fprintf(&b, "修正後の要因: %s\n", strings.Join(report.ModifiedReport.Factors, " / "))
		}
		if report.ModifiedReport.EditReason != "" {
			fmt.Fprintf(&b, "修正理由: %s\n", truncateRunes(report.ModifiedReport.EditReason, 50))
		}
	}
	return b.String()
}

// LearningStats 学习数据概览
type LearningStats struct {
	TotalReports    int64 `json:"total_reports"`
	Corrections     int64 `json:"corrections"`
	Patterns        int64 `json:"patterns"`
	IndexedCases    int   `json:"indexed_cases"`
	VectorAvailable bool  `json:"vector_available"`
}

// Stats 返回学习数据概览
func (s *LearningService) Stats(ctx context.Context) (LearningStats, error) {
	var stats LearningStats

	total, err := s.reports.Count(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalReports = total

	corrected, err := s.reports.CountCorrected(ctx)
	if err != nil {
		return stats, err
	}
	stats.Corrections = corrected

	patterns, err := s.patterns.Count(ctx)
	if err != nil {
		return stats, err
	}
	stats.Patterns = patterns

	stats.IndexedCases = s.collection.Count()
	stats.VectorAvailable = s.embed.IsConfigured()
	return stats, nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

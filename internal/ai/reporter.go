package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/yuqie6/shopweekly/internal/schema"
)

// WeeklyInput 一次周报生成的全部输入
type WeeklyInput struct {
	StoreName        string
	MondayDate       string
	DailyReports     map[string]schema.DayEntry
	Topics           string
	ImpactDay        string
	QuantitativeData string
	SimilarContext   string // 过去修正案例摘要（学习服务提供）
	StyleContext     string // 社内用语/文体示例（文体服务提供）
}

// ConsistencyCheck 定量数据与日次叙述的一致性预检结果
type ConsistencyCheck struct {
	Consistent bool     `json:"is_consistent"`
	Issues     []string `json:"issues"`
	Notes      []string `json:"notes"`
}

// WeeklyResult 生成结果。API 出错时 Report 携带错误形态的回退内容，
// 调用方原样存储，不做二次解释。
type WeeklyResult struct {
	Report      schema.GeneratedReport `json:"report"`
	Consistency ConsistencyCheck       `json:"consistency_check"`
	Raw         string                 `json:"raw,omitempty"`
}

// WeeklyReporter 周报生成器
type WeeklyReporter struct {
	client *DeepSeekClient
}

// NewWeeklyReporter 创建周报生成器
func NewWeeklyReporter(client *DeepSeekClient) *WeeklyReporter {
	return &WeeklyReporter{client: client}
}

// Generate 生成一份周报。失败不返回 error 而是错误形态的回退结果 ——
// 下游把返回值原样落库，用户看到的是可读的失败说明而不是空白。
func (r *WeeklyReporter) Generate(ctx context.Context, input WeeklyInput) *WeeklyResult {
	check := CheckQuantitativeConsistency(input.DailyReports, input.QuantitativeData)

	if !r.client.IsConfigured() {
		slog.Warn("DeepSeek 未配置，返回回退周报")
		return fallbackResult("APIキー未設定のため分析できませんでした", check)
	}

	messages := []Message{
		{Role: "system", Content: buildSystemPrompt(input.StyleContext)},
		{Role: "user", Content: buildUserPrompt(input, check)},
	}

	raw, err := r.client.ChatWithOptions(ctx, messages, 0.3, 1000, true)
	if err != nil {
		slog.Error("周报生成失败", "store", input.StoreName, "week", input.MondayDate, "error", err)
		return fallbackResult(fmt.Sprintf("分析できませんでした（%s）", err.Error()), check)
	}

	report, ok := ParseReportJSON(raw)
	if !ok {
		slog.Warn("AI 输出不是合法 JSON", "raw_prefix", truncateRunes(raw, 200))
		return &WeeklyResult{
			Report: schema.GeneratedReport{
				Trend: "エラー: AIからの出力が有効なJSON形式ではありませんでした",
			},
			Consistency: check,
			Raw:         raw,
		}
	}

	return &WeeklyResult{Report: report, Consistency: check, Raw: raw}
}

func fallbackResult(trend string, check ConsistencyCheck) *WeeklyResult {
	return &WeeklyResult{
		Report: schema.GeneratedReport{
			Trend:     trend,
			Factors:   []string{"エラーのため分析を実行できませんでした"},
			Questions: []string{"設定を確認して再試行してください"},
		},
		Consistency: check,
	}
}

// buildSystemPrompt 系统提示词。输出契约：纯 JSON、动向 400 字、要因最多 3 条。
func buildSystemPrompt(styleContext string) string {
	prompt := `あなたはアパレル小売業界の専門アナリストです。
与えられた日次レポートデータ、TOPICS、インパクト大、定量データを基に、週次レポートを作成してください。

【分析要件】
1. 動向と要因の因果関係を明確に記述する。
2. 「目論見以下」などの結果表現は、具体的な要因まで深掘りして説明する。
3. 提供された定量データ（売上、入店客数、買上客数、買上率、SET率、客単価、販売単価の各％）との整合性を確認し、レポートに反映させる。
4. 整合性チェック結果が提供された場合は、その指摘事項を考慮してレポートを作成する。
5. TOPICSやインパクト大の事象が週全体に与えた影響度を評価し、レポートに含める。
6. 敬語・丁寧語は使用せず、体言止めや簡潔な表現で記述する。

【出力形式】
必ず以下のJSON形式のみで出力する。
{
  "trend": "週全体の動向を400字程度で記述",
  "factors": ["要因1 (30字以内)", "要因2 (30字以内)", "要因3 (30字以内)"],
  "questions": ["不明点があれば質問形式で記述。なければ空の配列。"]
}`

	if styleContext != "" {
		prompt += "\n\n【社内用語・文体の参考情報】\n" + styleContext
	}
	return prompt
}

// buildUserPrompt 用户提示词：按日期升序铺开日次数据，再附周级字段与
// 修正案例、一致性预检结果。
func buildUserPrompt(input WeeklyInput, check ConsistencyCheck) string {
	var b strings.Builder
	b.WriteString("以下の情報から週次レポートをJSON形式で作成する。\n\n")
	fmt.Fprintf(&b, "【対象】%s店 %s週\n\n", input.StoreName, input.MondayDate)

	b.WriteString("【日次レポートデータ】\n")
	dates := make([]string, 0, len(input.DailyReports))
	for date := range input.DailyReports {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	for _, date := range dates {
		entry := input.DailyReports[date]
		if entry.Trend == "" && len(entry.Factors) == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s 動向: %s", date, entry.Trend)
		if len(entry.Factors) > 0 {
			fmt.Fprintf(&b, " / 要因: %s", strings.Join(entry.Factors, ", "))
		}
		b.WriteString("\n")
	}

	if input.Topics != "" {
		fmt.Fprintf(&b, "\n【TOPICS】\n%s\n", input.Topics)
	}
	if input.ImpactDay != "" {
		fmt.Fprintf(&b, "\n【インパクト大】\n%s\n", input.ImpactDay)
	}
	if input.QuantitativeData != "" {
		fmt.Fprintf(&b, "\n【定量データ（前年比）】\n%s\n", input.QuantitativeData)
	}

	if len(check.Issues) > 0 || len(check.Notes) > 0 {
		b.WriteString("\n【整合性チェック結果】\n")
		for _, issue := range check.Issues {
			fmt.Fprintf(&b, "- 指摘: %s\n", issue)
		}
		for _, note := range check.Notes {
			fmt.Fprintf(&b, "- 参考: %s\n", note)
		}
	}

	if input.SimilarContext != "" {
		b.WriteString("\n" + input.SimilarContext)
	}

	return b.String()
}

var jsonBlockRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// ParseReportJSON 解析 AI 输出。优先提取 ```json 代码块，否则整体解析。
// trend 去首尾空白，factors 去空条目并截到 3 条，questions 去空条目。
func ParseReportJSON(raw string) (schema.GeneratedReport, bool) {
	payload := raw
	if m := jsonBlockRe.FindStringSubmatch(raw); m != nil {
		payload = m[1]
	}

	var parsed struct {
		Trend     string   `json:"trend"`
		Factors   []string `json:"factors"`
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return schema.GeneratedReport{}, false
	}

	report := schema.GeneratedReport{Trend: strings.TrimSpace(parsed.Trend)}
	for _, f := range parsed.Factors {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		report.Factors = append(report.Factors, f)
		if len(report.Factors) == 3 {
			break
		}
	}
	for _, q := range parsed.Questions {
		q = strings.TrimSpace(q)
		if q != "" {
			report.Questions = append(report.Questions, q)
		}
	}
	return report, true
}

// 定量数据的固定项目（前年比％）。存储的 quantitative_data 文本每行形如
// "売上: 97%"，与录入侧约定一致。
var quantitativeMetrics = []string{"売上", "入店客数", "買上客数", "買上率", "SET率", "客単価", "販売単価"}

var (
	positiveKeywords = []string{"好調", "増加", "上昇", "伸長", "向上", "改善", "プラス"}
	negativeKeywords = []string{"不調", "減少", "下降", "低下", "悪化", "マイナス", "苦戦"}
)

// CheckQuantitativeConsistency 定量数据与日次叙述的一致性预检。
// 前年比换算为增减幅（97% → -3pt）后做四类启发式检查，
// 结果注入提示词并随生成结果返回，不拦截生成本身。
func CheckQuantitativeConsistency(daily map[string]schema.DayEntry, quantitative string) ConsistencyCheck {
	check := ConsistencyCheck{Consistent: true}

	if quantitative == "" || len(daily) == 0 {
		check.Notes = append(check.Notes, "定量データまたは日次レポートが不足しているため、整合性チェックをスキップしました。")
		return check
	}

	ratios := parseQuantitative(quantitative)
	if len(ratios) == 0 {
		return check
	}

	var narrative strings.Builder
	for _, entry := range daily {
		narrative.WriteString(entry.Trend)
		narrative.WriteString(" ")
		narrative.WriteString(strings.Join(entry.Factors, " "))
		narrative.WriteString(" ")
	}
	content := narrative.String()

	// 1. 売上大幅变动时，叙述里应当有对应方向的表达
	if sales, ok := ratios["売上"]; ok {
		change := sales - 100
		if change > 10 && !containsAny(content, positiveKeywords) {
			check.Issues = append(check.Issues, fmt.Sprintf(
				"売上が前年比%.0f%%（%+.1fpt）と増加しているが、日次レポートに売上向上の記述が見当たらない。", sales, change))
		}
		if change < -10 && !containsAny(content, negativeKeywords) {
			check.Issues = append(check.Issues, fmt.Sprintf(
				"売上が前年比%.0f%%（%+.1fpt）と減少しているが、日次レポートに売上不振の記述が見当たらない。", sales, change))
		}
	}

	// 2. 入店客数与買上客数变动差距过大
	if visitors, ok1 := ratios["入店客数"]; ok1 {
		if buyers, ok2 := ratios["買上客数"]; ok2 {
			gap := (visitors - 100) - (buyers - 100)
			if gap < 0 {
				gap = -gap
			}
			if gap > 20 {
				check.Notes = append(check.Notes, fmt.Sprintf(
					"入店客数（前年比%.0f%%）と買上客数（前年比%.0f%%）の変動に%.1fptの差がある。", visitors, buyers, gap))
			}
		}
	}

	// 3. 買上率大幅变动
	if conversion, ok := ratios["買上率"]; ok {
		change := conversion - 100
		if change > 20 || change < -20 {
			check.Notes = append(check.Notes, fmt.Sprintf(
				"買上率が前年比%.0f%%（%+.1fpt）と大幅な変動を示している。要因の記載を確認。", conversion, change))
		}
	}

	// 4. 客単価与販売単価反向大幅变动
	if spend, ok1 := ratios["客単価"]; ok1 {
		if price, ok2 := ratios["販売単価"]; ok2 {
			spendChange := spend - 100
			priceChange := price - 100
			if (spendChange > 10 && priceChange < -10) || (spendChange < -10 && priceChange > 10) {
				check.Notes = append(check.Notes, fmt.Sprintf(
					"客単価（前年比%.0f%%）と販売単価（前年比%.0f%%）が逆方向に変動している。SET率や購入点数の変化を確認。", spend, price))
			}
		}
	}

	check.Consistent = len(check.Issues) == 0
	return check
}

// parseQuantitative 解析 "項目: 数値%" 形式的行，非数值行跳过
func parseQuantitative(quantitative string) map[string]float64 {
	ratios := make(map[string]float64)
	for _, line := range strings.Split(quantitative, "\n") {
		item, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		item = strings.TrimSpace(item)
		if !isKnownMetric(item) {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.TrimSuffix(value, "%")
		value = strings.TrimSuffix(value, "％")
		ratio, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		ratios[item] = ratio
	}
	return ratios
}

func isKnownMetric(item string) bool {
	for _, m := range quantitativeMetrics {
		if m == item {
			return true
		}
	}
	return false
}

func containsAny(content string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

package schema

import (
	"database/sql/driver"
	"encoding/json"
)

// DayEntry 单日报告：当日动向与要因列表
type DayEntry struct {
	Trend   string   `json:"trend"`
	Factors []string `json:"factors"`
}

// DailyReports 日期键(YYYY-MM-DD) → 单日报告，序列化为 JSON 文本列。
// 历史行可能由旧版本写入，Scan 对坏数据容错：仅重置本字段，不中断整行读取。
type DailyReports map[string]DayEntry

// Value 实现 driver.Valuer 接口
func (d DailyReports) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	return json.Marshal(d)
}

// Scan 实现 sql.Scanner 接口
func (d *DailyReports) Scan(value interface{}) error {
	*d = make(DailyReports)
	bytes, ok := rawBytes(value)
	if !ok || len(bytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bytes, d); err != nil {
		*d = make(DailyReports)
	}
	return nil
}

// GeneratedReport AI 生成的周报输出
type GeneratedReport struct {
	Trend     string   `json:"trend"`
	Factors   []string `json:"factors"`   // 最多 3 条
	Questions []string `json:"questions"`
}

// IsEmpty 是否尚无生成结果
func (g GeneratedReport) IsEmpty() bool {
	return g.Trend == "" && len(g.Factors) == 0 && len(g.Questions) == 0
}

// Value 实现 driver.Valuer 接口，空结果写入 NULL
func (g GeneratedReport) Value() (driver.Value, error) {
	if g.IsEmpty() {
		return nil, nil
	}
	return json.Marshal(g)
}

// Scan 实现 sql.Scanner 接口，坏数据退化为空结果
func (g *GeneratedReport) Scan(value interface{}) error {
	*g = GeneratedReport{}
	bytes, ok := rawBytes(value)
	if !ok || len(bytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bytes, g); err != nil {
		*g = GeneratedReport{}
	}
	return nil
}

// ModifiedReport 人工修正后的周报，零值表示尚未记录修正
type ModifiedReport struct {
	Trend      string   `json:"trend"`
	Factors    []string `json:"factors"`
	Questions  []string `json:"questions"`
	EditReason string   `json:"edit_reason"`
}

// IsEmpty 是否未记录修正
func (m ModifiedReport) IsEmpty() bool {
	return m.Trend == "" && len(m.Factors) == 0 && m.EditReason == ""
}

// Value 实现 driver.Valuer 接口，未修正写入 NULL
func (m ModifiedReport) Value() (driver.Value, error) {
	if m.IsEmpty() {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner 接口，坏数据退化为零值
func (m *ModifiedReport) Scan(value interface{}) error {
	*m = ModifiedReport{}
	bytes, ok := rawBytes(value)
	if !ok || len(bytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bytes, m); err != nil {
		*m = ModifiedReport{}
	}
	return nil
}

// WeeklyReport 每 (店铺, 周) 一行的权威周报快照。
// 草稿字段由合并协调器写入，generated/modified 由报告生成与修正流程写入。
type WeeklyReport struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreID          int64           `gorm:"index:idx_store_week,unique" json:"store_id"`
	MondayDate       string          `gorm:"size:10;index:idx_store_week,unique" json:"monday_date"`
	DailyReports     DailyReports    `gorm:"column:daily_reports_json;type:text" json:"daily_reports"`
	Topics           string          `gorm:"type:text" json:"topics"`
	ImpactDay        string          `gorm:"type:text" json:"impact_day"`
	QuantitativeData string          `gorm:"type:text" json:"quantitative_data"`
	GeneratedReport  GeneratedReport `gorm:"column:generated_report_json;type:text" json:"generated_report"`
	ModifiedReport   ModifiedReport  `gorm:"column:modified_report_json;type:text" json:"modified_report"`
	Timestamp        int64           `json:"timestamp"` // 最后写入时刻（毫秒）
}

// TableName 指定表名
func (WeeklyReport) TableName() string {
	return "weekly_reports"
}

// rawBytes 把驱动返回的列值归一化为字节串
func rawBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

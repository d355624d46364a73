package schema

// 字段类型 —— 草稿单元的第一级地址
const (
	FieldDailyTrend   = "daily_trend"       // 字段键为日期
	FieldDailyFactors = "daily_factors"     // 字段键为日期，值为 JSON 数组
	FieldTopics       = "topics"            // 字段键为字段名本身
	FieldImpactDay    = "impact_day"        // 同上
	FieldQuantitative = "quantitative_data" // 同上
)

// KnownFieldType 字段类型是否合法
func KnownFieldType(ft string) bool {
	switch ft {
	case FieldDailyTrend, FieldDailyFactors, FieldTopics, FieldImpactDay, FieldQuantitative:
		return true
	}
	return false
}

// DraftCell 字段级草稿单元 —— 最小同步单位，按 (店铺, 周, 字段类型, 字段键) 寻址。
// 单元是单一可变槽位：每次写入整体覆盖值与时间戳，不保留历史版本。
type DraftCell struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreName   string `gorm:"size:20;index:idx_cell,unique" json:"store_name"`
	MondayDate  string `gorm:"size:10;index:idx_cell,unique" json:"monday_date"`
	FieldType   string `gorm:"size:30;index:idx_cell,unique" json:"field_type"`
	FieldKey    string `gorm:"size:30;index:idx_cell,unique" json:"field_key"`
	FieldValue  string `gorm:"type:text" json:"field_value"`
	LastUpdated int64  `gorm:"index" json:"last_updated"` // 毫秒
	SessionID   string `gorm:"size:64" json:"session_id"`
}

// TableName 指定表名
func (DraftCell) TableName() string {
	return "realtime_data"
}

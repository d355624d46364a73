package schema

// LearningPattern 修正学习模式 —— 只增不删的学习日志。
// (input_context_hash, modified_output_json) 唯一：重复的相同修正
// 递增 usage_count 而不是插入新行。
type LearningPattern struct {
	ID               int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	InputContextHash string `gorm:"size:64;index:idx_pattern,unique" json:"input_context_hash"`
	OriginalOutput   string `gorm:"column:original_output_json;type:text" json:"original_output"`
	ModifiedOutput   string `gorm:"column:modified_output_json;type:text;index:idx_pattern,unique" json:"modified_output"`
	EditReason       string `gorm:"type:text" json:"edit_reason"`
	UsageCount       int    `gorm:"default:1" json:"usage_count"`
	LastUsed         int64  `json:"last_used"` // 毫秒
}

// TableName 指定表名
func (LearningPattern) TableName() string {
	return "learning_patterns"
}

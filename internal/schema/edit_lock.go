package schema

// EditLock 字段编辑锁。表结构预留给未来的悲观锁扩展，
// 当前的同步与合并逻辑不读写该表。
type EditLock struct {
	StoreName  string `gorm:"primaryKey;size:20" json:"store_name"`
	MondayDate string `gorm:"primaryKey;size:10" json:"monday_date"`
	FieldType  string `gorm:"primaryKey;size:30" json:"field_type"`
	FieldKey   string `gorm:"primaryKey;size:30" json:"field_key"`
	SessionID  string `gorm:"size:64" json:"session_id"`
	LockedAt   int64  `json:"locked_at"` // 毫秒
}

// TableName 指定表名
func (EditLock) TableName() string {
	return "edit_locks"
}

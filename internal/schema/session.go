package schema

// ActiveSession 设备会话注册。同一 session_id 重复注册时整行覆盖
// （insert-or-replace），last_active 即心跳时刻。
type ActiveSession struct {
	SessionID   string `gorm:"primaryKey;size:64" json:"session_id"`
	DeviceInfo  string `gorm:"type:text" json:"device_info"`
	StoreName   string `gorm:"size:20;index" json:"store_name"`
	LastActive  int64  `gorm:"index" json:"last_active"` // 毫秒
	EditingData string `gorm:"type:text" json:"editing_data"`
}

// TableName 指定表名
func (ActiveSession) TableName() string {
	return "active_sessions"
}

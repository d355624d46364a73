package schema

// Store 店铺 —— 系统初始化时创建，之后不可变
type Store struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"size:20;uniqueIndex" json:"name"` // 店铺代码，如 RAY
}

// TableName 指定表名
func (Store) TableName() string {
	return "stores"
}

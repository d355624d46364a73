package schema

import (
	"fmt"
	"time"
)

// ISODateLayout 周键与日期键统一使用的格式
const ISODateLayout = "2006-01-02"

// IsISODate 校验 YYYY-MM-DD 格式的日期键。
// 长度不符、补零缺失或日期越界（如 2024-13-40）都视为非法。
func IsISODate(s string) bool {
	if len(s) != len(ISODateLayout) {
		return false
	}
	_, err := time.Parse(ISODateLayout, s)
	return err == nil
}

// MondayOf 返回给定时间所在周的周一日期（本地时区）
func MondayOf(t time.Time) string {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // 周日归入当周末尾
	}
	monday := t.AddDate(0, 0, -(weekday - 1))
	return monday.Format(ISODateLayout)
}

// WeekDates 返回以 monday 开始的连续 7 天日期键
func WeekDates(monday string) ([]string, error) {
	start, err := time.Parse(ISODateLayout, monday)
	if err != nil {
		return nil, fmt.Errorf("周键不是合法日期: %w", err)
	}
	dates := make([]string, 7)
	for i := 0; i < 7; i++ {
		dates[i] = start.AddDate(0, 0, i).Format(ISODateLayout)
	}
	return dates, nil
}

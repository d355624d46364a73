package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// StyleExample 一条文体示例：录入侧的原始表达与定稿的社内表达
type StyleExample struct {
	Input  string
	Output string
}

// StyleService 社内文体示例库。从训练 CSV 加载，
// 注入提示词帮生成结果贴近既有周报的措辞。
// 重载整体替换，读路径只拿快照。
type StyleService struct {
	mu       sync.RWMutex
	examples []StyleExample
}

// NewStyleService 创建文体示例库
func NewStyleService() *StyleService {
	return &StyleService{}
}

// LoadCSV 从 CSV 文件加载示例（两列：input, output，带表头）。
// 列数不足或空行跳过，整体替换当前示例集。
func (s *StyleService) LoadCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("打开训练文件失败: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var examples []StyleExample
	header := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("解析训练文件失败: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(record) < 2 {
			continue
		}
		input := strings.TrimSpace(record[0])
		output := strings.TrimSpace(record[1])
		if input == "" || output == "" {
			continue
		}
		examples = append(examples, StyleExample{Input: input, Output: output})
	}

	s.mu.Lock()
	s.examples = examples
	s.mu.Unlock()

	slog.Info("文体示例已加载", "path", path, "count", len(examples))
	return len(examples), nil
}

// Count 当前示例数
func (s *StyleService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.examples)
}

// Context 组装提示词里的文体参考片段，maxExamples<=0 取缺省 5 条。
// 没有示例时返回空串。
func (s *StyleService) Context(maxExamples int) string {
	if maxExamples <= 0 {
		maxExamples = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.examples) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("以下は社内の文体・用語の例。表現の傾向を合わせる。\n")
	for i, ex := range s.examples {
		if i >= maxExamples {
			break
		}
		fmt.Fprintf(&b, "\n入力: %s\n定稿: %s\n", ex.Input, ex.Output)
	}
	return b.String()
}

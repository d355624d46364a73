package collector

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/yuqie6/shopweekly/internal/service"
)

// TrainingWatcher 训练数据监控器：监视文体训练 CSV 的变化，
// 写入后自动重载到文体示例库，省去改完训练文件还要重启的麻烦。
type TrainingWatcher struct {
	watcher     *fsnotify.Watcher
	style       *service.StyleService
	watchPaths  []string
	stopChan    chan struct{}
	running     bool
	mu          sync.Mutex
	stopOnce    sync.Once
	debounceMap map[string]time.Time // 防抖：file -> lastReload
	debounceDur time.Duration
}

// TrainingWatcherConfig 配置
type TrainingWatcherConfig struct {
	WatchPaths  []string // 监控的 CSV 文件或目录
	DebounceSec int      // 防抖时间（秒）
}

// NewTrainingWatcher 创建训练数据监控器
func NewTrainingWatcher(style *service.StyleService, cfg *TrainingWatcherConfig) (*TrainingWatcher, error) {
	if cfg == nil {
		cfg = &TrainingWatcherConfig{}
	}
	if cfg.DebounceSec <= 0 {
		cfg.DebounceSec = 2
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	return &TrainingWatcher{
		watcher:     watcher,
		style:       style,
		watchPaths:  cfg.WatchPaths,
		stopChan:    make(chan struct{}),
		debounceMap: make(map[string]time.Time),
		debounceDur: time.Duration(cfg.DebounceSec) * time.Second,
	}, nil
}

// Start 首次加载已有 CSV 并启动监控循环
func (w *TrainingWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, path := range w.watchPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			slog.Warn("训练路径无法解析", "path", path, "error", err)
			continue
		}
		if strings.EqualFold(filepath.Ext(absPath), ".csv") {
			if _, err := w.style.LoadCSV(absPath); err != nil {
				slog.Warn("初次加载训练文件失败", "path", absPath, "error", err)
			}
			// fsnotify 监控文件所在目录，编辑器的原子替换也能捕获
			absPath = filepath.Dir(absPath)
		}
		if err := w.watcher.Add(absPath); err != nil {
			slog.Warn("添加训练监控路径失败", "path", absPath, "error", err)
			continue
		}
		slog.Info("添加训练监控路径", "path", absPath)
	}

	go w.watchLoop(ctx)
	return nil
}

// Stop 停止监控
func (w *TrainingWatcher) Stop() error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		if !w.running {
			w.mu.Unlock()
			return
		}
		w.running = false
		w.mu.Unlock()

		close(w.stopChan)
		_ = w.watcher.Close()
		slog.Info("训练数据监控器已停止")
	})
	return nil
}

// watchLoop 监控循环
func (w *TrainingWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("训练文件监控错误", "error", err)
		}
	}
}

// handleFsEvent 处理文件系统事件，仅关心 CSV 的写入与新建
func (w *TrainingWatcher) handleFsEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
		return
	}

	w.mu.Lock()
	lastReload, exists := w.debounceMap[event.Name]
	now := time.Now()
	if exists && now.Sub(lastReload) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.debounceMap[event.Name] = now
	w.mu.Unlock()

	count, err := w.style.LoadCSV(event.Name)
	if err != nil {
		slog.Warn("重载训练文件失败", "path", event.Name, "error", err)
		return
	}
	slog.Info("训练文件已重载", "path", event.Name, "examples", count)
}

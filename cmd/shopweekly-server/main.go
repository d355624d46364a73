package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yuqie6/shopweekly/internal/bootstrap"
	"github.com/yuqie6/shopweekly/internal/collector"
	"github.com/yuqie6/shopweekly/internal/httpapi"
	"github.com/yuqie6/shopweekly/internal/pkg/config"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 首次启动落一份缺省配置，方便用户改
	cfgPath, cfgErr := config.DefaultConfigPath()
	if cfgErr == nil {
		if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
			_ = config.WriteFile(cfgPath, config.Default())
		}
	}

	core, err := bootstrap.NewCore(ctx, cfgPath)
	if err != nil {
		slog.Error("启动失败", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	slog.Info("ShopWeekly 启动中...", "name", core.Cfg.App.Name, "version", core.Cfg.App.Version)
	if core.DB.SafeMode {
		slog.Warn("数据库处于安全模式，部分历史数据可能不可见", "error", core.DB.MigrationError)
	}

	// 文体训练监控（可选）
	var watcher *collector.TrainingWatcher
	if core.Cfg.Training.Enabled && len(core.Cfg.Training.WatchPaths) > 0 {
		watcher, err = collector.NewTrainingWatcher(core.Services.Style, &collector.TrainingWatcherConfig{
			WatchPaths:  core.Cfg.Training.WatchPaths,
			DebounceSec: core.Cfg.Training.DebounceSec,
		})
		if err != nil {
			slog.Warn("训练数据监控器创建失败", "error", err)
		} else if err := watcher.Start(ctx); err != nil {
			slog.Warn("训练数据监控器启动失败", "error", err)
		}
	}

	server, err := httpapi.Start(ctx, httpapi.Deps{
		Sessions: core.Services.Sessions,
		Drafts:   core.Services.Drafts,
		Reports:  core.Services.Reports,
		Learning: core.Services.Learning,
		Stores:   core.Repos.Store,
		Version:  core.Cfg.App.Version,
	}, httpapi.Options{ListenAddr: core.Cfg.Server.ListenAddr})
	if err != nil {
		slog.Error("启动 HTTP 服务失败", "error", err)
		os.Exit(1)
	}

	// 周期清扫超时会话与过期草稿
	sweepInterval := time.Duration(core.Cfg.Sync.SweepIntervalMin) * time.Minute
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := core.Services.Sessions.Sweep(ctx); err != nil {
					slog.Warn("周期清扫失败", "error", err)
				}
			}
		}
	}()

	slog.Info("ShopWeekly 已启动", "base_url", server.BaseURL())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("正在关闭...")
	cancel()
	if watcher != nil {
		_ = watcher.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = server.Shutdown(shutdownCtx)
	shutdownCancel()
	slog.Info("ShopWeekly 已退出")
}

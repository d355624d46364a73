package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/yuqie6/shopweekly/internal/ai"
	"github.com/yuqie6/shopweekly/internal/pkg/config"
	"github.com/yuqie6/shopweekly/internal/repository"
	"github.com/yuqie6/shopweekly/internal/service"
)

// Core 持有跨二进制共享的核心依赖
type Core struct {
	Cfg *config.Config
	DB  *repository.Database

	Repos struct {
		Store   *repository.StoreRepository
		Report  *repository.ReportRepository
		Draft   *repository.DraftRepository
		Session *repository.SessionRepository
		Pattern *repository.PatternRepository
	}

	Services struct {
		Sync     *service.SyncService
		Sessions *service.SessionService
		Drafts   *service.DraftService
		Style    *service.StyleService
		Learning *service.LearningService
		Reports  *service.ReportService
	}

	Clients struct {
		DeepSeek  *ai.DeepSeekClient
		Embedding *ai.EmbeddingClient
	}
}

// NewCore 构建核心依赖（不启动 HTTP 与监控）
func NewCore(ctx context.Context, cfgPath string) (*Core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	config.SetupLogger(cfg.App.LogLevel)

	db, err := repository.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	c := &Core{Cfg: cfg, DB: db}

	// Repos
	c.Repos.Store = repository.NewStoreRepository(db.DB)
	c.Repos.Report = repository.NewReportRepository(db.DB)
	c.Repos.Draft = repository.NewDraftRepository(db.DB)
	c.Repos.Session = repository.NewSessionRepository(db.DB)
	c.Repos.Pattern = repository.NewPatternRepository(db.DB)

	// 店铺清单来自配置，首次启动播种
	if err := c.Repos.Store.EnsureStores(ctx, cfg.Stores.Names); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("初始化店铺失败: %w", err)
	}

	// Clients
	c.Clients.DeepSeek = ai.NewDeepSeekClient(&ai.DeepSeekConfig{
		APIKey:  cfg.AI.DeepSeek.APIKey,
		BaseURL: cfg.AI.DeepSeek.BaseURL,
		Model:   cfg.AI.DeepSeek.Model,
	})
	c.Clients.Embedding = ai.NewEmbeddingClient(&ai.EmbeddingConfig{
		APIKey:  cfg.AI.SiliconFlow.APIKey,
		BaseURL: cfg.AI.SiliconFlow.BaseURL,
		Model:   cfg.AI.SiliconFlow.EmbeddingModel,
	})

	// Services
	c.Services.Sync = service.NewSyncService(c.Repos.Draft)
	c.Services.Sessions = service.NewSessionService(c.Repos.Session, c.Repos.Draft, service.SessionWindows{
		ActiveWindow: time.Duration(cfg.Sync.ActiveWindowMin) * time.Minute,
		SessionTTL:   time.Duration(cfg.Sync.SessionTTLMin) * time.Minute,
		DraftTTL:     time.Duration(cfg.Sync.DraftTTLDays) * 24 * time.Hour,
	})
	c.Services.Drafts = service.NewDraftService(c.Repos.Store, c.Repos.Report, c.Services.Sync)
	c.Services.Style = service.NewStyleService()

	learning, err := service.NewLearningService(c.Repos.Pattern, c.Repos.Report, c.Clients.Embedding, &service.LearningConfig{
		RAGPath:      cfg.Learning.RAGPath,
		ContextLimit: cfg.Learning.ContextLimit,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.Services.Learning = learning

	reporter := ai.NewWeeklyReporter(c.Clients.DeepSeek)
	c.Services.Reports = service.NewReportService(c.Repos.Store, c.Repos.Report, learning, c.Services.Style, reporter)

	return c, nil
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// RequireAIConfigured 检查 AI 是否已配置
func (c *Core) RequireAIConfigured() error {
	if c.Clients.DeepSeek == nil || !c.Clients.DeepSeek.IsConfigured() {
		return fmt.Errorf("DeepSeek API 未配置")
	}
	return nil
}

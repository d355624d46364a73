package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuqie6/shopweekly/internal/repository"
	"github.com/yuqie6/shopweekly/internal/service"
)

// Deps HTTP 层依赖的服务集合
type Deps struct {
	Sessions *service.SessionService
	Drafts   *service.DraftService
	Reports  *service.ReportService
	Learning *service.LearningService
	Stores   *repository.StoreRepository
	Version  string
}

// LocalServer 本地 HTTP 服务
type LocalServer struct {
	ln      net.Listener
	srv     *http.Server
	baseURL string
}

// Options 启动参数
type Options struct {
	ListenAddr string // e.g. "127.0.0.1:8970"
}

// Start 启动 HTTP 服务。ListenAddr 端口为 0 时由系统分配，
// 实际地址通过 BaseURL 取回。
func Start(ctx context.Context, deps Deps, opts Options) (*LocalServer, error) {
	if deps.Sessions == nil || deps.Drafts == nil || deps.Reports == nil {
		return nil, fmt.Errorf("服务依赖不完整")
	}
	if strings.TrimSpace(opts.ListenAddr) == "" {
		opts.ListenAddr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return nil, err
	}

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	if host == "::" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	baseURL := "http://" + net.JoinHostPort(host, portStr)

	api := newAPI(deps)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	api.registerRoutes(r)

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ls := &LocalServer{
		ln:      ln,
		srv:     srv,
		baseURL: baseURL,
	}

	go func() {
		<-ctx.Done()
		_ = ls.Shutdown(context.Background())
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server 异常退出", "error", err)
		}
	}()

	slog.Info("本地 HTTP 已启动", "base_url", baseURL)
	return ls, nil
}

// BaseURL 返回实际监听地址
func (s *LocalServer) BaseURL() string {
	if s == nil {
		return ""
	}
	return s.baseURL
}

// Shutdown 优雅关闭
func (s *LocalServer) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

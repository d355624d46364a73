package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yuqie6/shopweekly/internal/schema"
	"github.com/yuqie6/shopweekly/internal/service"
)

type apiServer struct {
	deps      Deps
	startTime time.Time
}

func newAPI(deps Deps) *apiServer {
	return &apiServer{
		deps:      deps,
		startTime: time.Now(),
	}
}

func (a *apiServer) registerRoutes(r chi.Router) {
	r.Get("/health", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stores", a.handleListStores)

		r.Post("/sessions", a.handleRegisterSession)
		r.Get("/sessions", a.handleActiveSessions)
		r.Post("/sessions/{sessionID}/heartbeat", a.handleHeartbeat)

		r.Post("/fields", a.handleUpdateField)
		r.Get("/sync", a.handleSync)
		r.Get("/state", a.handleState)

		r.Get("/reports", a.handleListReports)
		r.Get("/reports/{store}/{week}", a.handleGetReport)
		r.Post("/reports/{store}/{week}/generate", a.handleGenerate)
		r.Post("/reports/{store}/{week}/correction", a.handleCorrection)

		r.Post("/maintenance/sweep", a.handleSweep)
		r.Get("/learning/stats", a.handleLearningStats)
	})
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"version":    a.deps.Version,
		"started_at": a.startTime.Format(time.RFC3339),
	})
}

func (a *apiServer) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := a.deps.Stores.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	names := make([]string, 0, len(stores))
	for _, s := range stores {
		names = append(names, s.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": names})
}

// ========== 会话 ==========

type registerSessionRequest struct {
	StoreName   string `json:"store_name"`
	DeviceInfo  string `json:"device_info"`
	EditingData string `json:"editing_data,omitempty"`
}

func (a *apiServer) handleRegisterSession(w http.ResponseWriter, r *http.Request) {
	var req registerSessionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败: "+err.Error())
		return
	}
	if strings.TrimSpace(req.StoreName) == "" {
		writeError(w, http.StatusBadRequest, "store_name 不能为空")
		return
	}

	id, err := a.deps.Sessions.Register(r.Context(), req.StoreName, req.DeviceInfo)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id})
}

func (a *apiServer) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req registerSessionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败: "+err.Error())
		return
	}

	if err := a.deps.Sessions.Heartbeat(r.Context(), sessionID, req.StoreName, req.DeviceInfo, req.EditingData); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *apiServer) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	storeName := r.URL.Query().Get("store")
	if storeName == "" {
		writeError(w, http.StatusBadRequest, "store 参数不能为空")
		return
	}

	sessions, err := a.deps.Sessions.ActiveSessions(r.Context(), storeName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// ========== 字段编辑与同步 ==========

type updateFieldRequest struct {
	SessionID  string `json:"session_id"`
	StoreName  string `json:"store_name"`
	MondayDate string `json:"monday_date"`
	FieldType  string `json:"field_type"`
	FieldKey   string `json:"field_key"`
	Value      string `json:"value"`
}

func (a *apiServer) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	var req updateFieldRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败: "+err.Error())
		return
	}
	if !schema.IsISODate(req.MondayDate) {
		writeError(w, http.StatusBadRequest, "monday_date 不是合法日期")
		return
	}

	err := a.deps.Drafts.UpdateField(r.Context(), req.SessionID, req.StoreName, req.MondayDate, req.FieldType, req.FieldKey, req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]any{"ok": true}
	if t, ok := a.deps.Drafts.LastSaved(req.StoreName, req.MondayDate); ok {
		resp["saved_at"] = t.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	storeName := q.Get("store")
	mondayDate := q.Get("monday_date")
	if storeName == "" || !schema.IsISODate(mondayDate) {
		writeError(w, http.StatusBadRequest, "store 或 monday_date 参数无效")
		return
	}

	changed, err := a.deps.Drafts.Refresh(r.Context(), sessionID, storeName, mondayDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changed": len(changed) > 0,
		"updates": changed,
	})
}

func (a *apiServer) handleState(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	storeName := q.Get("store")
	mondayDate := q.Get("monday_date")
	if storeName == "" || !schema.IsISODate(mondayDate) {
		writeError(w, http.StatusBadRequest, "store 或 monday_date 参数无效")
		return
	}

	state, err := a.deps.Drafts.State(r.Context(), storeName, mondayDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ========== 周报 ==========

func (a *apiServer) handleListReports(w http.ResponseWriter, r *http.Request) {
	// 报表页是天然的低频入口，顺手做一次尽力而为的清扫
	go func() {
		if _, err := a.deps.Sessions.Sweep(context.Background()); err != nil {
			slog.Debug("顺带清扫失败", "error", err)
		}
	}()

	summaries, err := a.deps.Reports.History(r.Context(), r.URL.Query().Get("store"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": summaries})
}

func (a *apiServer) handleGetReport(w http.ResponseWriter, r *http.Request) {
	storeName := chi.URLParam(r, "store")
	week := chi.URLParam(r, "week")
	if !schema.IsISODate(week) {
		writeError(w, http.StatusBadRequest, "week 不是合法日期")
		return
	}

	report, err := a.deps.Reports.Get(r.Context(), storeName, week)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	storeName := chi.URLParam(r, "store")
	week := chi.URLParam(r, "week")
	if !schema.IsISODate(week) {
		writeError(w, http.StatusBadRequest, "week 不是合法日期")
		return
	}

	result, err := a.deps.Reports.Generate(r.Context(), storeName, week)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type correctionRequest struct {
	Trend      string   `json:"trend"`
	Factors    []string `json:"factors"`
	Questions  []string `json:"questions"`
	EditReason string   `json:"edit_reason"`
}

func (a *apiServer) handleCorrection(w http.ResponseWriter, r *http.Request) {
	storeName := chi.URLParam(r, "store")
	week := chi.URLParam(r, "week")
	if !schema.IsISODate(week) {
		writeError(w, http.StatusBadRequest, "week 不是合法日期")
		return
	}

	var req correctionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败: "+err.Error())
		return
	}

	modified := schema.ModifiedReport{
		Trend:      req.Trend,
		Factors:    req.Factors,
		Questions:  req.Questions,
		EditReason: req.EditReason,
	}
	if err := a.deps.Reports.RecordCorrection(r.Context(), storeName, week, modified); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ========== 维护与统计 ==========

func (a *apiServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	result, err := a.deps.Sessions.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *apiServer) handleLearningStats(w http.ResponseWriter, r *http.Request) {
	if a.deps.Learning == nil {
		writeJSON(w, http.StatusOK, service.LearningStats{})
		return
	}
	stats, err := a.deps.Learning.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

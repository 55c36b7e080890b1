package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/omeyang/xrecur/pkg/lifecycle/xrecur"
)

const adminReadHeaderTimeout = 5 * time.Second

// statusResponse GET /status 的响应体。
type statusResponse struct {
	Name              string               `json:"name"`
	State             xrecur.Status        `json:"state"`
	Executing         bool                 `json:"executing"`
	Current           *xrecur.AttemptInfo  `json:"current,omitempty"`
	Interval          string               `json:"interval"`
	ImmediateFirstRun bool                 `json:"immediate_first_run"`
	Stats             xrecur.StatsSnapshot `json:"stats"`
}

// newAdminHandler 管理端点：
//
//	GET /healthz  健康检查，unhealthy 时 503
//	GET /status   调度器状态与当前尝试
//	GET /stats    统计快照
//
// current 每次请求时读取，配置重载替换调度器后端点自动跟随。
func newAdminHandler(current func() *xrecur.Scheduler, healthOpts ...xrecur.HealthOption) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		check := current().Health(r.Context(), healthOpts...)
		code := http.StatusOK
		if check.Status == xrecur.HealthUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, check)
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		s := current()
		cfg := s.Config()
		resp := statusResponse{
			Name:              s.Name(),
			State:             s.Status(),
			Interval:          cfg.Interval.String(),
			ImmediateFirstRun: cfg.ImmediateFirstRun,
			Stats:             s.Stats().Snapshot(),
		}
		if info, ok := s.Current(); ok {
			resp.Executing = true
			resp.Current = &info
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, current().Stats())
	})

	return mux
}

func newAdminServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: adminReadHeaderTimeout,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Package health serves liveness and status endpoints so hosting panels
// can probe the bot without touching Discord.
package health

import (
	"encoding/json"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/valyala/fasthttp"

	"go-guardian/internal/logging"
)

// switchState is the enabled gate surface the status page needs.
type switchState interface {
	Enabled() bool
}

// dropCounter reports shed load, implemented by the pipeline and the audit
// sink.
type dropCounter interface {
	Dropped() uint64
}

type Server struct {
	addr    string
	started time.Time
	sw      switchState
	events  dropCounter
	records dropCounter
	srv     *fasthttp.Server
}

type statusPayload struct {
	Status        string  `json:"status"`
	Enabled       bool    `json:"enabled"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	EventsDropped uint64  `json:"events_dropped"`
	AuditDropped  uint64  `json:"audit_dropped"`
	Goroutines    int     `json:"goroutines"`
	MemoryPercent float64 `json:"memory_percent"`
	CPUPercent    float64 `json:"cpu_percent"`
}

func New(addr string, sw switchState, events, records dropCounter) *Server {
	s := &Server{
		addr:    addr,
		started: time.Now(),
		sw:      sw,
		events:  events,
		records: records,
	}
	s.srv = &fasthttp.Server{
		Handler:      s.handle,
		Name:         "guardian-health",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Start serves in the background. Listen errors after startup are logged,
// not fatal: losing the health port must not take the bot down.
func (s *Server) Start() {
	go func() {
		logging.Log().WithField("addr", s.addr).Info("health server listening")
		if err := s.srv.ListenAndServe(s.addr); err != nil {
			logging.Log().WithError(err).Error("health server stopped")
		}
	}()
}

func (s *Server) Stop() error {
	return s.srv.Shutdown()
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"ok"}`)
	case "/status":
		s.status(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) status(ctx *fasthttp.RequestCtx) {
	payload := statusPayload{
		Status:        "ok",
		Enabled:       s.sw.Enabled(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		EventsDropped: s.events.Dropped(),
		AuditDropped:  s.records.Dropped(),
		Goroutines:    runtime.NumGoroutine(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		payload.MemoryPercent = vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		payload.CPUPercent = pct[0]
	}

	body, err := json.Marshal(payload)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

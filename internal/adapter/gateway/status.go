package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"ordito/internal/domain"
)

// Metrics tracks counters for the status API and Prometheus metrics.
type Metrics struct {
	Connections     atomic.Int64
	RPCCalls        atomic.Int64
	RPCErrors       atomic.Int64
	RPCRejected     atomic.Int64
	EventsForwarded atomic.Int64
	SchedulesFired  atomic.Int64
}

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Groups        int       `json:"groups"`
	Commands      int       `json:"commands"`
	Schedules     int       `json:"schedules"`
	ActiveSched   int       `json:"active_schedules"`
	RPC           RPCStatus `json:"rpc"`
}

// RPCStatus holds RPC usage counters.
type RPCStatus struct {
	Connections int64 `json:"connections"`
	CallsTotal  int64 `json:"calls_total"`
	ErrorsTotal int64 `json:"errors_total"`
	Rejected    int64 `json:"rate_limited"`
}

// Version is reported by the status endpoint.
var Version = "dev"

// RegisterStatusRoutes registers GET /api/v1/status and GET /metrics. Both
// require a valid token. Must be called before Start.
func RegisterStatusRoutes(s *Server, gw domain.RemoteGateway) {
	startTime := time.Now()
	if s.bus != nil {
		s.bus.Subscribe(domain.EventScheduleFired, func(_ context.Context, _ domain.Event) {
			s.metrics.SchedulesFired.Add(1)
		})
	}

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.auth.Authenticate(requestToken(r)); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("/api/v1/status", authMiddleware(statusHandler(gw, startTime, s.metrics)))
	s.RegisterHTTPRoute("/metrics", authMiddleware(metricsHandler(gw, startTime, s.metrics)))
}

type inventory struct {
	groups, commands, schedules, active int
}

func takeInventory(ctx context.Context, gw domain.RemoteGateway) (inventory, error) {
	var inv inventory
	groups, err := gw.GetGroups(ctx)
	if err != nil {
		return inv, err
	}
	schedules, err := gw.GetSchedules(ctx)
	if err != nil {
		return inv, err
	}
	inv.groups = len(groups)
	for _, g := range groups {
		inv.commands += len(g.Commands)
	}
	inv.schedules = len(schedules)
	for _, sch := range schedules {
		if sch.State() == domain.ScheduleActive {
			inv.active++
		}
	}
	return inv, nil
}

func statusHandler(gw domain.RemoteGateway, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		inv, err := takeInventory(r.Context(), gw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		resp := StatusResponse{
			Name:          "ordito",
			Version:       Version,
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
			Groups:        inv.groups,
			Commands:      inv.commands,
			Schedules:     inv.schedules,
			ActiveSched:   inv.active,
			RPC: RPCStatus{
				Connections: metrics.Connections.Load(),
				CallsTotal:  metrics.RPCCalls.Load(),
				ErrorsTotal: metrics.RPCErrors.Load(),
				Rejected:    metrics.RPCRejected.Load(),
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// metricsHandler serves the Prometheus text format without the client library.
func metricsHandler(gw domain.RemoteGateway, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		inv, err := takeInventory(r.Context(), gw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		gauge := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, help, name, name, v)
		}
		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
		}

		gauge("ordito_groups", "Number of command groups.", int64(inv.groups))
		gauge("ordito_commands", "Number of commands across groups.", int64(inv.commands))
		gauge("ordito_schedules", "Number of schedules.", int64(inv.schedules))
		gauge("ordito_schedules_active", "Number of active schedules.", int64(inv.active))

		counter("ordito_gateway_connections_total", "WebSocket connections accepted.", metrics.Connections.Load())
		counter("ordito_rpc_calls_total", "RPC calls dispatched.", metrics.RPCCalls.Load())
		counter("ordito_rpc_errors_total", "RPC calls that returned an error.", metrics.RPCErrors.Load())
		counter("ordito_rpc_rate_limited_total", "RPC calls rejected by the rate limiter.", metrics.RPCRejected.Load())
		counter("ordito_events_forwarded_total", "Events forwarded to clients.", metrics.EventsForwarded.Load())
		counter("ordito_schedules_fired_total", "Schedule firings.", metrics.SchedulesFired.Load())

		fmt.Fprintf(w, "# HELP ordito_uptime_seconds Seconds since the gateway started.\n")
		fmt.Fprintf(w, "# TYPE ordito_uptime_seconds gauge\n")
		fmt.Fprintf(w, "ordito_uptime_seconds %.0f\n", time.Since(startTime).Seconds())

		gauge("go_goroutines", "Number of goroutines.", int64(runtime.NumGoroutine()))
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		gauge("go_memstats_alloc_bytes", "Bytes of allocated heap objects.", int64(mem.Alloc))
	}
}

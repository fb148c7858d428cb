// Package health отдаёт liveness и readiness состояния сервиса.
// Каждая зависимость регистрируется как именованный probe; readiness
// считается по худшему из результатов.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// probeTimeout ограничивает одну проверку зависимости.
const probeTimeout = 2 * time.Second

// Probe проверяет доступность одной зависимости.
type Probe func(ctx context.Context) error

// componentState — результат последней проверки одного компонента.
type componentState struct {
	Component string `json:"component"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type report struct {
	Status     string           `json:"status"`
	Service    string           `json:"service"`
	Version    string           `json:"version,omitempty"`
	UptimeSec  int64            `json:"uptime_sec"`
	Components []componentState `json:"components,omitempty"`
}

// Registry хранит probes зависимостей сервиса и отвечает на health-запросы.
type Registry struct {
	mu      sync.RWMutex
	service string
	version string
	started time.Time
	probes  map[string]Probe
}

// NewRegistry создаёт реестр проверок для сервиса.
func NewRegistry(service, version string) *Registry {
	return &Registry{
		service: service,
		version: version,
		started: time.Now(),
		probes:  make(map[string]Probe),
	}
}

// Register добавляет probe зависимости. Повторная регистрация заменяет probe.
func (r *Registry) Register(component string, probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[component] = probe
}

// RegisterPinger — вариант Register для зависимостей с методом Ping.
func (r *Registry) RegisterPinger(component string, pinger interface {
	Ping(ctx context.Context) error
}) {
	r.Register(component, pinger.Ping)
}

func (r *Registry) snapshot() map[string]Probe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	probes := make(map[string]Probe, len(r.probes))
	for name, probe := range r.probes {
		probes[name] = probe
	}
	return probes
}

// run выполняет все probes и возвращает состояния с общим итогом.
func (r *Registry) run(ctx context.Context) ([]componentState, bool) {
	probes := r.snapshot()

	states := make([]componentState, 0, len(probes))
	healthy := true
	for name, probe := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		start := time.Now()
		err := probe(probeCtx)
		cancel()

		state := componentState{
			Component: name,
			Healthy:   err == nil,
			LatencyMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			state.Error = err.Error()
			healthy = false
		}
		states = append(states, state)
	}

	sort.Slice(states, func(i, j int) bool { return states[i].Component < states[j].Component })
	return states, healthy
}

// Handler отвечает на GET /health подробным JSON-отчётом.
// Нездоровая зависимость даёт 503.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		states, healthy := r.run(req.Context())

		status := "healthy"
		code := http.StatusOK
		if !healthy {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report{
			Status:     status,
			Service:    r.service,
			Version:    r.version,
			UptimeSec:  int64(time.Since(r.started).Seconds()),
			Components: states,
		})
	}
}

// ReadyHandler отвечает на GET /ready: 200, когда все зависимости доступны.
func (r *Registry) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if _, healthy := r.run(req.Context()); !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

// LiveHandler отвечает на liveness probe: процесс жив, пока отвечает.
func LiveHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

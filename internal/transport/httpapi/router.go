// Package httpapi содержит HTTP-адаптеры сервисов: тонкие обработчики
// поверх доменных сервисов, middleware наблюдаемости и bearer-аутентификацию.
package httpapi

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
)

// Option настраивает HTTP-роутер сервиса.
type Option func(*router)

// WithMetrics задаёт сборщик метрик HTTP-запросов.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *router) { r.metrics = m }
}

// WithLogger задаёт logger access-логов.
func WithLogger(logger *log.Entry) Option {
	return func(r *router) { r.logger = logger }
}

// WithVerifier задаёт проверку bearer-токенов для защищённых маршрутов.
// Без verifier защищённые маршруты отвечают 401.
func WithVerifier(v TokenVerifier) Option {
	return func(r *router) { r.verifier = v }
}

type router struct {
	mux      *http.ServeMux
	metrics  *metrics.Metrics
	logger   *log.Entry
	verifier TokenVerifier
}

func newRouter(component string, options ...Option) *router {
	r := &router{mux: http.NewServeMux()}
	for _, option := range options {
		option(r)
	}
	if r.logger == nil {
		r.logger = log.WithField("component", component)
	}
	return r
}

// handle регистрирует публичный маршрут.
func (r *router) handle(pattern string, handler http.HandlerFunc) {
	r.mux.HandleFunc(pattern, handler)
}

// protected регистрирует маршрут, требующий валидный bearer-токен.
func (r *router) protected(pattern string, handler http.HandlerFunc) {
	if r.verifier == nil {
		r.mux.HandleFunc(pattern, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication is not configured"})
		})
		return
	}
	r.mux.HandleFunc(pattern, requireAuth(r.verifier, handler))
}

func (r *router) build() http.Handler {
	return withObservability(r.metrics, r.logger, withCorrelation(r.mux))
}

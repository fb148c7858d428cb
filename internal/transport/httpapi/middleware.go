package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/metrics"
)

// CorrelationHeader — заголовок сквозного идентификатора запроса.
const CorrelationHeader = "X-Correlation-ID"

type contextKey int

const (
	correlationKey contextKey = iota
	userIDKey
)

// CorrelationID возвращает сквозной идентификатор запроса из контекста.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// UserID возвращает идентификатор аутентифицированного пользователя.
// Пустая строка означает анонимный запрос.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// TokenVerifier проверяет bearer-токен и возвращает subject (user_id).
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// statusRecorder перехватывает код ответа для метрик и логов.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// withCorrelation читает X-Correlation-ID или генерирует новый,
// кладёт его в контекст и возвращает в заголовке ответа.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(CorrelationHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, correlationID)

		ctx := context.WithValue(r.Context(), correlationKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withObservability пишет метрики запроса и структурированный access-лог.
func withObservability(m *metrics.Metrics, logger *log.Entry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}

		if m != nil {
			m.HTTPInFlightInc()
			defer m.HTTPInFlightDec()
		}

		next.ServeHTTP(recorder, r)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = r.URL.Path
		}

		duration := time.Since(start)
		if m != nil {
			m.ObserveHTTPRequest(endpoint, r.Method, strconv.Itoa(status), duration)
			if status >= http.StatusInternalServerError {
				m.RecordHTTPError(endpoint, "server_error")
			}
		}

		logger.WithFields(log.Fields{
			"method":         r.Method,
			"path":           r.URL.Path,
			"status":         status,
			"duration_ms":    duration.Milliseconds(),
			"correlation_id": CorrelationID(r.Context()),
		}).Debug("http request handled")
	})
}

// requireAuth извлекает bearer-токен, проверяет его и кладёт user_id в контекст.
func requireAuth(verifier TokenVerifier, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		userID, err := verifier.VerifyToken(token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

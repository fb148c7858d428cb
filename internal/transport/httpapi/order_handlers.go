package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/service/order"
)

const (
	defaultOrderListLimit = 100
	// idempotencyTTL — срок хранения сохранённого ответа по Idempotency-Key.
	idempotencyTTL = 24 * time.Hour
)

// orderHandlers обслуживает создание, чтение и отмену заказов.
// Все маршруты требуют bearer-токен: заказы видны только владельцу.
type orderHandlers struct {
	orders *order.Coordinator
	keys   domain.IdempotencyRepository
	logger *log.Entry
}

// NewOrderRouter собирает HTTP-маршруты order-service. keys может быть nil:
// тогда POST /orders обрабатывается без защиты от повторной отправки.
func NewOrderRouter(orders *order.Coordinator, keys domain.IdempotencyRepository, options ...Option) http.Handler {
	r := newRouter("order-http", options...)

	h := &orderHandlers{orders: orders, keys: keys, logger: r.logger}
	r.protected("POST /api/v1/orders", h.create)
	r.protected("GET /api/v1/orders", h.list)
	r.protected("GET /api/v1/orders/{id}", h.get)
	r.protected("PUT /api/v1/orders/{id}/cancel", h.cancel)

	return r.build()
}

func (h *orderHandlers) create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey != "" && h.keys != nil {
		if done := h.claimIdempotencyKey(w, idempotencyKey, body); done {
			return
		}
	}

	var req createOrderRequest
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.finish(w, idempotencyKey, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Qty:         item.Qty,
			UnitPrice:   item.UnitPrice,
		})
	}

	created, err := h.orders.CreateOrder(r.Context(), order.CreateOrderRequest{
		UserID:          UserID(r.Context()),
		ShippingAddress: req.ShippingAddress,
		Items:           items,
		CorrelationID:   CorrelationID(r.Context()),
	})
	if err != nil {
		h.finish(w, idempotencyKey, statusFromError(err), errorResponse{Error: err.Error()})
		return
	}

	h.finish(w, idempotencyKey, http.StatusCreated, toOrderResponse(created))
}

// claimIdempotencyKey регистрирует ключ за текущим запросом. Возвращает true,
// если ответ уже отправлен: сохранённый повтор, конфликт или гонка обработки.
func (h *orderHandlers) claimIdempotencyKey(w http.ResponseWriter, key string, body []byte) bool {
	hash := sha256.Sum256(body)
	_, err := h.keys.CreateProcessing(key, hex.EncodeToString(hash[:]), time.Now().UTC().Add(idempotencyTTL))
	if err == nil {
		return false
	}

	if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		record, getErr := h.keys.Get(key)
		if getErr != nil {
			writeError(w, getErr)
			return true
		}
		if record.Status == domain.IdempotencyStatusProcessing {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "request with this idempotency key is still processing"})
			return true
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(record.HTTPStatus)
		if _, writeErr := w.Write(record.ResponseBody); writeErr != nil {
			h.logger.WithError(writeErr).Warn("failed to replay stored response")
		}
		return true
	}

	writeError(w, err)
	return true
}

// finish отправляет ответ и, если запрос шёл с Idempotency-Key,
// сохраняет тело для последующих повторов.
func (h *orderHandlers) finish(w http.ResponseWriter, idempotencyKey string, status int, body any) {
	encoded, err := json.Marshal(body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to encode response"})
		return
	}

	if idempotencyKey != "" && h.keys != nil {
		markErr := error(nil)
		if status < http.StatusBadRequest {
			markErr = h.keys.MarkDone(idempotencyKey, encoded, status)
		} else {
			markErr = h.keys.MarkFailed(idempotencyKey, encoded, status)
		}
		if markErr != nil {
			h.logger.WithError(markErr).Warn("failed to store idempotent response")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(encoded); err != nil {
		h.logger.WithError(err).Warn("failed to write response body")
	}
}

func (h *orderHandlers) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(UserID(r.Context()), defaultOrderListLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *orderHandlers) get(w http.ResponseWriter, r *http.Request) {
	found, err := h.orders.GetOrder(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	// Чужой заказ неотличим от несуществующего.
	if found.UserID != UserID(r.Context()) {
		writeError(w, domain.ErrOrderNotFound)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(found))
}

func (h *orderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, err)
		return
	}

	cancelled, err := h.orders.CancelOrder(r.PathValue("id"), UserID(r.Context()), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(cancelled))
}

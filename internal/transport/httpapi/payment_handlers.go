package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/service/payment"
)

// paymentHandlers обслуживает синхронную оплату и возвраты.
type paymentHandlers struct {
	payments *payment.Service
}

// NewPaymentRouter собирает HTTP-маршруты payment-service.
func NewPaymentRouter(payments *payment.Service, options ...Option) http.Handler {
	r := newRouter("payment-http", options...)

	h := &paymentHandlers{payments: payments}
	r.protected("POST /api/v1/payments", h.charge)
	r.protected("GET /api/v1/payments/{id}", h.get)
	r.protected("POST /api/v1/payments/{id}/refund", h.refund)

	return r.build()
}

// charge — синхронная попытка оплаты. Отклонённый платёж отвечает 402
// и телом платежа с причиной отказа.
func (h *paymentHandlers) charge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	charged, err := h.payments.Charge(r.Context(), payment.ChargeRequest{
		OrderID:       req.OrderID,
		UserID:        UserID(r.Context()),
		Amount:        req.Amount,
		Method:        req.Method,
		CorrelationID: CorrelationID(r.Context()),
	})
	if errors.Is(err, domain.ErrPaymentDeclined) {
		writeJSON(w, http.StatusPaymentRequired, toPaymentResponse(charged))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentResponse(charged))
}

func (h *paymentHandlers) get(w http.ResponseWriter, r *http.Request) {
	found, err := h.payments.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if found.UserID != UserID(r.Context()) {
		writeError(w, domain.ErrPaymentNotFound)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(found))
}

func (h *paymentHandlers) refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, err)
		return
	}

	refunded, err := h.payments.Refund(r.Context(), r.PathValue("id"), req.Reason, CorrelationID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(refunded))
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// errorResponse — единый формат тела ошибки для всех эндпоинтов.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("failed to encode response body")
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFromError(err), errorResponse{Error: err.Error()})
}

// statusFromError отображает таксономию доменных ошибок на HTTP-коды.
// Неизвестные ошибки считаются инфраструктурными и дают 500.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrIdempotencyHashMismatch),
		errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists),
		errors.Is(err, domain.ErrPaymentAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusBadRequest
	case domain.IsTerminalConflict(err),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStockInvariantViolated),
		errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrEmailInvalid),
		errors.Is(err, domain.ErrUserNameRequired),
		errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrUserIDRequired),
		errors.Is(err, domain.ErrOrderIDRequired),
		errors.Is(err, domain.ErrItemProductRequired),
		errors.Is(err, domain.ErrItemQtyInvalid),
		errors.Is(err, domain.ErrItemPriceInvalid),
		errors.Is(err, domain.ErrProductNameRequired),
		errors.Is(err, domain.ErrProductPriceNegative),
		errors.Is(err, domain.ErrPaymentAmountNegative),
		errors.Is(err, domain.ErrPaymentMethodRequired),
		errors.Is(err, domain.ErrReservationSKURequired),
		errors.Is(err, domain.ErrReservationQtyInvalid),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errBadRequest помечает ошибки разбора тела запроса.
var errBadRequest = errors.New("bad request")

func decodeBody(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

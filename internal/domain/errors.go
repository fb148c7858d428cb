package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserIDRequired = errors.New("user_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total_amount must be non-negative")
	// Ошибка отсутствующего товара в позиции заказа.
	ErrItemProductRequired = errors.New("item product_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка отсутствующего имени товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены товара.
	ErrProductPriceNegative = errors.New("product price must be non-negative")
	// Нарушение складского инварианта stock >= reserved >= 0.
	ErrStockInvariantViolated = errors.New("stock invariant violated: want stock >= reserved >= 0")
	// Ошибка отсутствующего идентификатора заказа в платежах/резервах.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего SKU в резерве.
	ErrReservationSKURequired = errors.New("reservation sku is required")
	// Ошибка некорректного количества в резерве.
	ErrReservationQtyInvalid = errors.New("reservation qty must be greater than zero")
	// Ошибка отрицательной суммы платежа.
	ErrPaymentAmountNegative = errors.New("payment amount must be non-negative")
	// Ошибка отсутствующего способа оплаты.
	ErrPaymentMethodRequired = errors.New("payment method is required")
	// Ошибка некорректного email при регистрации.
	ErrEmailInvalid = errors.New("email is invalid")
	// Ошибка отсутствующего имени пользователя.
	ErrUserNameRequired = errors.New("user name is required")
	// Ошибка слишком короткого пароля.
	ErrPasswordTooShort = errors.New("password is too short")
	// Ошибка отсутствующего типа события в outbox.
	ErrEventTypeRequired = errors.New("event_type is required")
	// Ошибка отсутствующего топика в outbox.
	ErrTopicRequired = errors.New("topic is required")
	// Ошибка отсутствующего идентификатора агрегата в outbox.
	ErrAggregateIDRequired = errors.New("aggregate_id is required")

	// ErrUserNotFound возвращается, если пользователь не найден в репозитории.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken возвращается при регистрации на занятый email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials — неверная пара email/пароль при логине.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid — подпись или срок действия bearer-токена не прошли проверку.
	ErrTokenInvalid = errors.New("token is invalid or expired")
	// ErrProductNotFound возвращается, если товар не найден в репозитории.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPaymentNotFound возвращается, если платёж не найден в репозитории.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrPaymentAlreadyExists — по заказу уже есть платёж (order_id уникален).
	ErrPaymentAlreadyExists = errors.New("payment already exists for order")
	// ErrReservationNotFound возвращается, если резерв не найден.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrForbidden — доступ к чужому ресурсу.
	ErrForbidden = errors.New("access to resource is forbidden")

	// ErrInsufficientStock — на складе нет нужного количества (бизнес-ошибка).
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReservationTerminal — резерв уже в конечном статусе, переход невозможен.
	ErrReservationTerminal = errors.New("reservation already in terminal state")
	// ErrOrderTerminal — заказ уже в конечном статусе, переход невозможен.
	ErrOrderTerminal = errors.New("order already in terminal state")
	// ErrInvalidTransition — запрошенный переход статуса не разрешён машиной состояний.
	ErrInvalidTransition = errors.New("status transition is not allowed")
	// ErrPaymentDeclined — платёж отклонён шлюзом (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrRefundDeclined — возврат отклонён шлюзом.
	ErrRefundDeclined = errors.New("refund declined")
	// ErrIdempotencyKeyRequired — пустой Idempotency-Key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash тела запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — повторный Idempotency-Key с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrOutboxPublish — ошибка при публикации события из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrUnknownEventType — для типа события не зарегистрирован обработчик.
	ErrUnknownEventType = errors.New("no handler registered for event type")
)

// IsInsufficientStock проверяет, является ли ошибка отказом склада по стоку.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}

// IsNotFound проверяет, относится ли ошибка к семейству "не найдено".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}

// IsTerminalConflict проверяет, вызвана ли ошибка попыткой изменить
// агрегат в конечном статусе.
func IsTerminalConflict(err error) bool {
	return errors.Is(err, ErrOrderTerminal) || errors.Is(err, ErrReservationTerminal)
}

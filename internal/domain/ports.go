package domain

import "time"

// UserRepository описывает требования к хранилищу пользователей.
type UserRepository interface {
	// Create сохраняет пользователя и события outbox в одной транзакции.
	// Возвращает ErrEmailTaken, если email уже занят.
	Create(user User, events []OutboxEvent) error
	// Get возвращает пользователя по идентификатору или ErrUserNotFound.
	Get(id string) (User, error)
	// GetByEmail возвращает пользователя по email или ErrUserNotFound.
	GetByEmail(email string) (User, error)
}

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	Create(product Product) (Product, error)
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(id string) (Product, error)
	List(category string, limit int) ([]Product, error)
	// AdjustStock применяет административную корректировку остатка.
	// Коллбек events вызывается внутри транзакции с уже скорректированным
	// товаром; его события коммитятся вместе с корректировкой. Корректировка,
	// нарушающая stock >= reserved >= 0, отклоняется с ErrStockInvariantViolated.
	AdjustStock(id string, op StockOperation, qty int64, events func(Product) []OutboxEvent) (Product, error)
}

// InventoryStore — порт движка резервирования. Каждая операция атомарна:
// условные UPDATE по товарам, строки reservations и события outbox коммитятся
// одной транзакцией. Коллбек events вызывается внутри транзакции, когда исход
// операции уже известен.
type InventoryStore interface {
	// Reserve атомарно резервирует все позиции заказа или ни одной.
	// При нехватке стока возвращает результат с Success=false и списком
	// failed-позиций; ошибкой это не считается.
	Reserve(orderID string, items []ReservationItem, ttl time.Duration, events func(ReservationResult) []OutboxEvent) (ReservationResult, error)
	// Confirm переводит pending-резервы заказа в confirmed: stock−, reserved−, sold+.
	Confirm(orderID string, events func([]Reservation) []OutboxEvent) ([]Reservation, error)
	// Release снимает pending-резервы заказа: reserved−, статус released.
	Release(orderID string, events func([]Reservation) []OutboxEvent) ([]Reservation, error)
	// ExpireDue снимает pending-резервы с истёкшим expires_at, не более limit за вызов.
	ExpireDue(now time.Time, limit int, events func(Reservation) []OutboxEvent) ([]Reservation, error)
	// InvariantViolations возвращает SKU, нарушающие stock >= reserved >= 0.
	// В корректной системе список всегда пуст.
	InvariantViolations() ([]string, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет заказ, его позиции и события outbox в одной транзакции.
	Create(order Order, events []OutboxEvent) error
	// Get возвращает заказ с позициями или ErrOrderNotFound.
	Get(id string) (Order, error)
	// ListByUser возвращает заказы пользователя, не более limit.
	ListByUser(userID string, limit int) ([]Order, error)
	// UpdateStatus переводит заказ to, если текущий статус входит в from.
	// Несовпадение from возвращает ErrOrderTerminal для конечных статусов
	// и ErrInvalidTransition для остальных. Запись и события — одна транзакция.
	UpdateStatus(id string, from []OrderStatus, to OrderStatus, events []OutboxEvent) (Order, error)
}

// PaymentRepository описывает требования к хранилищу платежей.
type PaymentRepository interface {
	Create(payment Payment, events []OutboxEvent) error
	// Get возвращает платёж или ErrPaymentNotFound.
	Get(id string) (Payment, error)
	// GetByOrder возвращает платёж по заказу или ErrPaymentNotFound.
	GetByOrder(orderID string) (Payment, error)
	// Save применяет обновление платежа и пишет события outbox в одной транзакции.
	Save(payment Payment, events []OutboxEvent) error
}

// OutboxBatchResult — итог одного батча публикации outbox.
type OutboxBatchResult struct {
	Processed int
	Published int
	Retried   int
	// Failed — строки, переведённые в failed в этом батче (алерт оператору).
	Failed []OutboxEvent
}

// OutboxRepository позволяет сохранять события для последующей публикации
// и обслуживает polling-воркер.
type OutboxRepository interface {
	// Enqueue сохраняет событие вне бизнес-транзакции (служебные публикации).
	Enqueue(event OutboxEvent) (OutboxEvent, error)
	// ProcessPending одной транзакцией выбирает до limit pending-строк в
	// порядке создания (конкурирующие воркеры пропускают заблокированные),
	// вызывает publish для каждой и фиксирует исходы: успех — published,
	// временная ошибка — retry_count+1, retry_count >= maxAttempts — failed.
	ProcessPending(limit, maxAttempts int, publish func(OutboxEvent) error) (OutboxBatchResult, error)
	Stats() (OutboxStats, error)
}

// ProcessedEventStore хранит отметки об обработанных событиях для
// идемпотентных консьюмеров. Отметка ставится после успешной обработки,
// до коммита offset: падение между ними даёт повторную доставку, которую
// отметка отсечёт.
type ProcessedEventStore interface {
	// Seen сообщает, обработано ли событие данной группой.
	Seen(group, eventID string) (bool, error)
	// MarkProcessed ставит отметку (group, eventID) с TTL.
	MarkProcessed(group, eventID string, ttl time.Duration) error
}

// IdempotencyRepository хранит состояние обработки запросов по Idempotency-Key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// ReserveKeyStore хранит соответствие ключа идемпотентности резервирования
// и выданного reservation_id.
type ReserveKeyStore interface {
	Put(key, reservationID string, ttl time.Duration) error
	// Get возвращает reservation_id и признак наличия ключа.
	Get(key string) (string, bool, error)
}

// Cache — read-through кэш JSON-представлений агрегатов.
type Cache interface {
	Set(key string, value any, ttl time.Duration) error
	// Get десериализует значение в dest; false — ключа нет.
	Get(key string, dest any) (bool, error)
	Delete(key string) error
}

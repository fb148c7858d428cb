package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
	"github.com/vladislavdragonenkov/shopflow/internal/service/inventory"
)

const defaultProductListLimit = 100

// productHandlers обслуживает каталог товаров и операции склада.
type productHandlers struct {
	inventory *inventory.Service
}

// NewInventoryRouter собирает HTTP-маршруты inventory-service.
// Чтение каталога публично; изменение остатков и резервирование требуют токен.
func NewInventoryRouter(svc *inventory.Service, options ...Option) http.Handler {
	r := newRouter("inventory-http", options...)

	h := &productHandlers{inventory: svc}
	r.handle("GET /api/v1/products", h.list)
	r.handle("GET /api/v1/products/{id}", h.get)
	r.protected("POST /api/v1/products", h.create)
	r.protected("PUT /api/v1/products/{id}/stock", h.adjustStock)
	r.protected("POST /api/v1/inventory/reserve", h.reserve)

	return r.build()
}

func (h *productHandlers) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.inventory.ListProducts(r.URL.Query().Get("category"), defaultProductListLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponses(products))
}

func (h *productHandlers) get(w http.ResponseWriter, r *http.Request) {
	product, err := h.inventory.GetProduct(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *productHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.inventory.CreateProduct(domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(created))
}

func (h *productHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	op := domain.StockOperation(req.Operation)
	if !op.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "operation must be one of set, add, subtract"})
		return
	}

	product, err := h.inventory.AdjustStock(r.PathValue("id"), op, req.Quantity, CorrelationID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// reserve — синхронное резервирование под заказ. Idempotency-Key необязателен:
// повтор с тем же ключом возвращает уже выданный reservation_id.
func (h *productHandlers) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	items := make([]domain.ReservationItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.ReservationItem{SKU: item.SKU, Qty: item.Qty})
	}

	result, err := h.inventory.Reserve(r.Context(), r.Header.Get("Idempotency-Key"), req.OrderID, items)
	if err != nil {
		writeError(w, err)
		return
	}

	// Нехватка стока — ошибка запроса: в теле остаётся разбивка
	// failed_items по каждой позиции.
	status := http.StatusCreated
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, toReservationResponse(result))
}

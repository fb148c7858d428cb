package httpapi

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopflow/internal/service/inventory"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
)

func newInventoryRouter(t *testing.T) (http.Handler, *inventory.Service) {
	t.Helper()

	store := memory.NewInventory(memory.NewOutboxRepository())
	svc := inventory.NewService(store, store, inventory.WithReserveKeys(memory.NewReserveKeyStore()))
	return NewInventoryRouter(svc, WithVerifier(stubVerifier{})), svc
}

func createTestProduct(t *testing.T, router http.Handler, stock int64) productResponse {
	t.Helper()

	resp := do(t, router, request{
		method:  http.MethodPost,
		path:    "/api/v1/products",
		body:    createProductRequest{Name: "Widget", Category: "tools", Price: decimal.NewFromFloat(19.99), Stock: stock},
		headers: authed("admin-1"),
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create product status = %d, body %s", resp.Code, resp.Body)
	}

	var product productResponse
	decodeResponse(t, resp, &product)
	return product
}

func TestProductRoutes_CreateAndRead(t *testing.T) {
	router, _ := newInventoryRouter(t)
	product := createTestProduct(t, router, 25)

	resp := do(t, router, request{method: http.MethodGet, path: "/api/v1/products?category=tools"})
	if resp.Code != http.StatusOK {
		t.Fatalf("list status = %d", resp.Code)
	}
	var listed []productResponse
	decodeResponse(t, resp, &listed)
	if len(listed) != 1 || listed[0].ID != product.ID {
		t.Fatalf("unexpected list: %+v", listed)
	}

	resp = do(t, router, request{method: http.MethodGet, path: "/api/v1/products/" + product.ID})
	if resp.Code != http.StatusOK {
		t.Fatalf("get status = %d", resp.Code)
	}

	resp = do(t, router, request{method: http.MethodGet, path: "/api/v1/products/missing"})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("missing product status = %d, want 404", resp.Code)
	}
}

func TestProductRoutes_CreateRequiresAuth(t *testing.T) {
	router, _ := newInventoryRouter(t)

	resp := do(t, router, request{
		method: http.MethodPost,
		path:   "/api/v1/products",
		body:   createProductRequest{Name: "Widget", Price: decimal.NewFromInt(5)},
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create status = %d, want 401", resp.Code)
	}
}

func TestProductRoutes_AdjustStock(t *testing.T) {
	router, _ := newInventoryRouter(t)
	product := createTestProduct(t, router, 10)

	resp := do(t, router, request{
		method:  http.MethodPut,
		path:    "/api/v1/products/" + product.ID + "/stock",
		body:    adjustStockRequest{Quantity: 5, Operation: "add"},
		headers: authed("admin-1"),
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("adjust status = %d, body %s", resp.Code, resp.Body)
	}
	var adjusted productResponse
	decodeResponse(t, resp, &adjusted)
	if adjusted.Stock != 15 {
		t.Fatalf("stock = %d, want 15", adjusted.Stock)
	}

	// Вычитание ниже нуля нарушает складской инвариант.
	resp = do(t, router, request{
		method:  http.MethodPut,
		path:    "/api/v1/products/" + product.ID + "/stock",
		body:    adjustStockRequest{Quantity: 100, Operation: "subtract"},
		headers: authed("admin-1"),
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("underflow status = %d, want 400", resp.Code)
	}

	resp = do(t, router, request{
		method:  http.MethodPut,
		path:    "/api/v1/products/" + product.ID + "/stock",
		body:    adjustStockRequest{Quantity: 1, Operation: "divide"},
		headers: authed("admin-1"),
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unknown operation status = %d, want 400", resp.Code)
	}

	resp = do(t, router, request{
		method:  http.MethodPut,
		path:    "/api/v1/products/missing/stock",
		body:    adjustStockRequest{Quantity: 1, Operation: "add"},
		headers: authed("admin-1"),
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("missing product adjust status = %d, want 404", resp.Code)
	}
}

func TestProductRoutes_Reserve(t *testing.T) {
	router, _ := newInventoryRouter(t)
	product := createTestProduct(t, router, 10)

	body := reserveRequest{
		OrderID: "order-1",
		Items:   []reserveItemRequest{{SKU: product.ID, Qty: 4}},
	}
	resp := do(t, router, request{
		method:  http.MethodPost,
		path:    "/api/v1/inventory/reserve",
		body:    body,
		headers: authed("user-1"),
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("reserve status = %d, body %s", resp.Code, resp.Body)
	}
	var reservation reservationResponse
	decodeResponse(t, resp, &reservation)
	if !reservation.Success || reservation.ReservationID == "" {
		t.Fatalf("unexpected reservation: %+v", reservation)
	}

	// Запрос сверх остатка: атомарный отказ с перечнем позиций.
	resp = do(t, router, request{
		method:  http.MethodPost,
		path:    "/api/v1/inventory/reserve",
		body:    reserveRequest{OrderID: "order-2", Items: []reserveItemRequest{{SKU: product.ID, Qty: 100}}},
		headers: authed("user-1"),
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("oversized reserve status = %d, want 400", resp.Code)
	}
	var rejected reservationResponse
	decodeResponse(t, resp, &rejected)
	if rejected.Success || len(rejected.FailedItems) != 1 {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}
	if rejected.FailedItems[0].Reason != "insufficient_stock" {
		t.Fatalf("per-item reason missing: %+v", rejected.FailedItems)
	}
}

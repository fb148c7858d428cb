package httpapi

import (
	"net/http"
	"testing"

	"github.com/vladislavdragonenkov/shopflow/internal/service/user"
	"github.com/vladislavdragonenkov/shopflow/internal/storage/memory"
)

func newUserRouter(t *testing.T) http.Handler {
	t.Helper()
	users := user.NewService(memory.NewUserRepository(nil), "test-secret")
	return NewUserRouter(users)
}

func TestUserRoutes_RegisterLoginMe(t *testing.T) {
	router := newUserRouter(t)

	resp := do(t, router, request{
		method: http.MethodPost,
		path:   "/api/v1/users/register",
		body:   registerRequest{Email: "Alice@Example.com", Name: "Alice", Password: "s3cret-pass"},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", resp.Code, resp.Body)
	}

	var registered userResponse
	decodeResponse(t, resp, &registered)
	if registered.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %s", registered.Email)
	}

	resp = do(t, router, request{
		method: http.MethodPost,
		path:   "/api/v1/users/login",
		body:   loginRequest{Email: "alice@example.com", Password: "s3cret-pass"},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", resp.Code, resp.Body)
	}

	var login loginResponse
	decodeResponse(t, resp, &login)
	if login.Token == "" {
		t.Fatal("login must return a token")
	}

	resp = do(t, router, request{
		method:  http.MethodGet,
		path:    "/api/v1/users/me",
		headers: map[string]string{"Authorization": "Bearer " + login.Token},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", resp.Code, resp.Body)
	}

	var me userResponse
	decodeResponse(t, resp, &me)
	if me.ID != registered.ID {
		t.Fatalf("me returned %s, want %s", me.ID, registered.ID)
	}
}

func TestUserRoutes_RegisterDuplicateEmail(t *testing.T) {
	router := newUserRouter(t)

	body := registerRequest{Email: "alice@example.com", Name: "Alice", Password: "s3cret-pass"}
	if resp := do(t, router, request{method: http.MethodPost, path: "/api/v1/users/register", body: body}); resp.Code != http.StatusCreated {
		t.Fatalf("first register status = %d", resp.Code)
	}

	resp := do(t, router, request{method: http.MethodPost, path: "/api/v1/users/register", body: body})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register status = %d, want 400", resp.Code)
	}
}

func TestUserRoutes_Unauthorized(t *testing.T) {
	router := newUserRouter(t)

	resp := do(t, router, request{method: http.MethodGet, path: "/api/v1/users/me"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("me without token status = %d, want 401", resp.Code)
	}

	resp = do(t, router, request{
		method: http.MethodPost,
		path:   "/api/v1/users/login",
		body:   loginRequest{Email: "nobody@example.com", Password: "whatever-pass"},
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.Code)
	}
}

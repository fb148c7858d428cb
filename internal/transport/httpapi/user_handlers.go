package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/shopflow/internal/service/user"
)

// userHandlers обслуживает регистрацию, логин и профиль пользователя.
type userHandlers struct {
	users *user.Service
}

// NewUserRouter собирает HTTP-маршруты user-service.
// Сам сервис пользователей выступает проверяющим токенов для GET /me.
func NewUserRouter(users *user.Service, options ...Option) http.Handler {
	r := newRouter("user-http", options...)
	if r.verifier == nil {
		r.verifier = users
	}

	h := &userHandlers{users: users}
	r.handle("POST /api/v1/users/register", h.register)
	r.handle("POST /api/v1/users/login", h.login)
	r.protected("GET /api/v1/users/me", h.me)

	return r.build()
}

func (h *userHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.users.Register(req.Email, req.Name, req.Password, CorrelationID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(created))
}

func (h *userHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, account, err := h.users.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: toUserResponse(account)})
}

func (h *userHandlers) me(w http.ResponseWriter, r *http.Request) {
	account, err := h.users.Get(UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(account))
}

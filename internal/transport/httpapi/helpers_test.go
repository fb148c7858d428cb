package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

// stubVerifier принимает токен вида "token-<user_id>".
type stubVerifier struct{}

func (stubVerifier) VerifyToken(token string) (string, error) {
	const prefix = "token-"
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return "", domain.ErrTokenInvalid
	}
	return token[len(prefix):], nil
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

func do(t *testing.T, handler http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if req.body != nil {
		if err := json.NewEncoder(&body).Encode(req.body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	httpReq := httptest.NewRequest(req.method, req.path, &body)
	for name, value := range req.headers {
		httpReq.Header.Set(name, value)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httpReq)
	return recorder
}

func authed(userID string) map[string]string {
	return map[string]string{"Authorization": "Bearer token-" + userID}
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

var errStub = errors.New("stub failure")

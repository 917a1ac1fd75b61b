package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mockAuthService is a mock implementation of AuthService for testing.
type mockAuthService struct {
	claims      *Claims
	token       string
	validateErr error
	ownerErr    error
}

func (m *mockAuthService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	if m.validateErr != nil {
		return nil, "", m.validateErr
	}
	return m.claims, m.token, nil
}

func (m *mockAuthService) RequireOwner(claims *Claims) (uuid.UUID, error) {
	if m.ownerErr != nil {
		return uuid.Nil, m.ownerErr
	}
	return uuid.Parse(claims.Subject)
}

func TestMiddleware_RequireAuth_Success(t *testing.T) {
	ownerID := uuid.New()
	claims := &Claims{RegisteredClaims: registered(ownerID.String())}
	middleware := NewMiddleware(&mockAuthService{claims: claims, token: "test-token"}, zap.NewNop())

	var ctxOwner uuid.UUID
	var ctxToken string
	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		ctxOwner, _ = GetOwnerIDFromContext(r.Context())
		ctxToken, _ = GetToken(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ctxOwner != ownerID {
		t.Errorf("expected owner %s in context, got %s", ownerID, ctxOwner)
	}
	if ctxToken != "test-token" {
		t.Errorf("expected token 'test-token' in context, got %q", ctxToken)
	}
}

func TestMiddleware_RequireAuth_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		service *mockAuthService
		message string
	}{
		{
			name:    "invalid token",
			service: &mockAuthService{validateErr: ErrMissingAuthorization},
			message: "Authentication required",
		},
		{
			name:    "subject not a user",
			service: &mockAuthService{claims: &Claims{}, ownerErr: ErrInvalidSubject},
			message: "Token does not identify a user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := NewMiddleware(tt.service, zap.NewNop())
			called := false
			handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

			if called {
				t.Error("expected handler not to be called")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["error"] != "unauthorized" || body["message"] != tt.message {
				t.Errorf("unexpected body: %v", body)
			}
		})
	}
}

func TestMiddleware_RequireAuth_EndToEndDevToken(t *testing.T) {
	ownerID := uuid.New()
	client := newDevClient(t, "visibility")
	middleware := NewMiddleware(NewAuthService(client, zap.NewNop()), zap.NewNop())

	handler := middleware.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		if _, err := RequireOwnerIDFromContext(r.Context()); err != nil {
			t.Errorf("expected owner in context: %v", err)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(&Claims{RegisteredClaims: registered(ownerID.String(), "visibility")}))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(&Claims{RegisteredClaims: registered(ownerID.String(), "engine")}))
	rec = httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 for foreign audience, got %d", rec.Code)
	}
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testTokenService() *TokenService {
	return NewTokenService([]byte("unit-test-signing-key-0123456789"), 15*time.Minute, 7*24*time.Hour)
}

// exercise sends a request through the middleware and reports whether the
// inner handler ran.
func exercise(ts *TokenService, req *http.Request) (reached bool, rec *httptest.ResponseRecorder, claims *Claims) {
	handler := AuthMiddleware(ts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		claims = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return reached, rec, claims
}

func TestAuthMiddleware_Exemptions(t *testing.T) {
	ts := testTokenService()

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"liveness probe", "GET", "/healthz"},
		{"metrics", "GET", "/metrics"},
		{"spa route", "GET", "/fleet"},
		{"login", "POST", "/api/v1/auth/login"},
		{"refresh", "POST", "/api/v1/auth/refresh"},
		{"logout", "POST", "/api/v1/auth/logout"},
		{"first-run setup", "POST", "/api/v1/auth/setup"},
		{"mfa verify", "POST", "/api/v1/auth/mfa/verify"},
		{"ws handshake", "GET", "/api/v1/ws/fleet"},
		{"collector ingest", "POST", "/api/v1/telemetry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			reached, _, _ := exercise(ts, req)
			if !reached {
				t.Errorf("%s %s should bypass token validation", tt.method, tt.path)
			}
		})
	}
}

func TestAuthMiddleware_IngestExemptionIsPostOnly(t *testing.T) {
	ts := testTokenService()

	// Reading the fleet still requires a token; only the collector's
	// POST skips JWT in favor of the API-key check downstream.
	for _, tt := range []struct{ method, path string }{
		{"GET", "/api/v1/telemetry/devices"},
		{"DELETE", "/api/v1/telemetry"},
	} {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		reached, rec, _ := exercise(ts, req)
		if reached {
			t.Errorf("%s %s reached handler without a token", tt.method, tt.path)
		}
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", tt.method, tt.path, rec.Code)
		}
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	ts := testTokenService()

	req := httptest.NewRequest("GET", "/api/v1/telemetry/devices", nil)
	reached, rec, _ := exercise(ts, req)

	if reached {
		t.Error("handler ran without an Authorization header")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_GarbageToken(t *testing.T) {
	ts := testTokenService()

	req := httptest.NewRequest("GET", "/api/v1/telemetry/devices", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	reached, rec, _ := exercise(ts, req)

	if reached {
		t.Error("handler ran with a garbage token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_NonBearerScheme(t *testing.T) {
	ts := testTokenService()

	req := httptest.NewRequest("GET", "/api/v1/telemetry/devices", nil)
	req.Header.Set("Authorization", "Basic b3BzOmh1bnRlcjI=")
	reached, rec, _ := exercise(ts, req)

	if reached {
		t.Error("handler ran with a Basic credential")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	ts := testTokenService()

	user := &User{ID: "u-42", Username: "fleetops", Role: RoleOperator}
	token, err := ts.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/telemetry/devices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	reached, rec, claims := exercise(ts, req)

	if !reached {
		t.Fatal("handler did not run with a valid token")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if claims == nil {
		t.Fatal("expected claims in context")
	}
	if claims.UserID != "u-42" || claims.Username != "fleetops" {
		t.Errorf("claims = %q/%q, want u-42/fleetops", claims.UserID, claims.Username)
	}
}

func TestUserFromContext_Unauthenticated(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if claims := UserFromContext(req.Context()); claims != nil {
		t.Errorf("claims = %+v, want nil", claims)
	}
}

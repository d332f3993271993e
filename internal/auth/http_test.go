// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers bearer extraction, socket token lookup and context propagation

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t)
	token, _ := verifier.Generate(5, time.Hour)

	var gotUserID int64
	var gotOK bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, gotOK = UserIDFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/chat/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	HTTPAuthMiddleware(verifier, nil)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if !gotOK {
		t.Fatal("expected user ID in context")
	}
	if gotUserID != 5 {
		t.Errorf("expected user 5, got %d", gotUserID)
	}
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	verifier := newTestVerifier(t)
	expired, _ := verifier.Generate(5, -time.Hour)
	valid, _ := verifier.Generate(5, time.Hour)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"bare token", valid, "invalid authorization header format"},
		{"empty bearer", "Bearer ", "empty token"},
		{"garbage", "Bearer not-a-jwt", "invalid token"},
		{"expired", "Bearer " + expired, "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			req := httptest.NewRequest(http.MethodGet, "/api/chat/unread-count", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			HTTPAuthMiddleware(verifier, nil)(handler).ServeHTTP(rec, req)

			if called {
				t.Error("handler should not be called")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON content type, got %q", ct)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body["error"] != tt.wantMsg {
				t.Errorf("expected error %q, got %q", tt.wantMsg, body["error"])
			}
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		header    string
		wantToken string
		wantErr   bool
	}{
		{"query param", "/ws?token=abc", "", "abc", false},
		{"query wins over header", "/ws?token=abc", "Bearer xyz", "abc", false},
		{"bearer header", "/ws", "Bearer xyz", "xyz", false},
		{"bare header", "/ws", "xyz", "xyz", false},
		{"missing", "/ws", "", "", true},
		{"empty bearer", "/ws", "Bearer  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			token, errMsg := TokenFromRequest(req)
			if tt.wantErr {
				if errMsg == "" {
					t.Errorf("expected error, got token %q", token)
				}
				return
			}
			if errMsg != "" {
				t.Fatalf("unexpected error %q", errMsg)
			}
			if token != tt.wantToken {
				t.Errorf("token = %q, want %q", token, tt.wantToken)
			}
		})
	}
}

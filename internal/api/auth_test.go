package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func getAuthToken(t *testing.T, server *Server) string {
	t.Helper()
	loginReq := LoginRequest{Username: "admin", Password: "password"}
	body, _ := json.Marshal(loginReq)
	req, _ := http.NewRequest("POST", "/api/v1/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Login failed: %d", resp.Code)
	}

	var response APIResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal login response: %v", err)
	}

	loginData, ok := response.Data.(map[string]interface{})
	if !ok {
		t.Fatal("Expected login data in response")
	}
	token, ok := loginData["token"].(string)
	if !ok || token == "" {
		t.Fatal("Expected token in login response")
	}
	return token
}

func TestLogin(t *testing.T) {
	server := newTestServer(t)
	token := getAuthToken(t, server)

	req, _ := http.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Protected endpoint with valid token: Expected status 200, got %d", resp.Code)
	}
}

func TestUnauthorizedAccess(t *testing.T) {
	server := newTestServer(t)

	req, _ := http.NewRequest("GET", "/api/v1/stats", nil)
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}

	req, _ = http.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	resp = httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for invalid token, got %d", resp.Code)
	}
}

func TestHealthCheckNoAuth(t *testing.T) {
	server := newTestServer(t)

	req, _ := http.NewRequest("GET", "/api/v1/health", nil)
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Health check should not require auth: Expected status 200, got %d", resp.Code)
	}
}

func TestInvalidCredentials(t *testing.T) {
	server := newTestServer(t)

	loginReq := LoginRequest{Username: "admin", Password: "wrong-password"}
	body, _ := json.Marshal(loginReq)
	req, _ := http.NewRequest("POST", "/api/v1/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for invalid credentials, got %d", resp.Code)
	}
}

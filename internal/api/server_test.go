package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nyasuto/strata/internal/lsm"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	tree, err := lsm.Open(lsm.Config{
		WALPath:             filepath.Join(dir, "wal.log"),
		SSTableDir:          filepath.Join(dir, "sstables"),
		MemTableMaxSize:     100,
		CompactionThreshold: 100,
		CompactionStrategy:  lsm.LevelBased,
	})
	if err != nil {
		t.Fatalf("lsm.Open: %v", err)
	}
	t.Cleanup(func() { _ = tree.Close() })

	return NewServer(tree, Config{AdminUser: "admin", AdminPassword: "password", JWTSecret: "test-secret"})
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestHealthCheck(t *testing.T) {
	server := newTestServer(t)

	req, _ := http.NewRequest("GET", "/api/v1/health", nil)
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got %v", response["status"])
	}
}

func TestStats_RequiresAuth(t *testing.T) {
	server := newTestServer(t)

	req, _ := http.NewRequest("GET", "/api/v1/stats", nil)
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestStats_WithValidToken(t *testing.T) {
	server := newTestServer(t)
	token := getAuthToken(t, server)

	if err := server.tree.Write("a", "1"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	req, _ := http.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}

	var response APIResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response.Status != "success" {
		t.Errorf("Expected success status, got %s", response.Status)
	}
}

func TestCompact_TriggersEngineCompaction(t *testing.T) {
	server := newTestServer(t)
	token := getAuthToken(t, server)

	// newTestServer's MemTableMaxSize is 100, so 100 writes flush exactly
	// one level-0 SSTable for the manual compaction to merge.
	for i := 0; i < 100; i++ {
		if err := server.tree.Write(fmt.Sprintf("k%03d", i), "v"); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	req, _ := http.NewRequest("POST", "/api/v1/admin/compact", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	server.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}

	stats := server.tree.Stats()
	if stats.CompactionCount != 1 {
		t.Errorf("CompactionCount = %d, want 1", stats.CompactionCount)
	}
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"

	"github.com/jmylchreest/consult-billing/internal/http/mw"
	"github.com/jmylchreest/consult-billing/internal/models"
	"github.com/jmylchreest/consult-billing/internal/version"
)

// ========================================
// HealthCheck Tests
// ========================================

func TestHealthCheck(t *testing.T) {
	output, err := HealthCheck(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output == nil {
		t.Fatal("expected output, got nil")
	}
	if output.Body.Status != "healthy" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "healthy")
	}
	if output.Body.Version != version.Get().Short() {
		t.Errorf("Version = %q, want %q", output.Body.Version, version.Get().Short())
	}
}

// ========================================
// Livez Tests
// ========================================

func TestLivez(t *testing.T) {
	output, err := Livez(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output == nil {
		t.Fatal("expected output, got nil")
	}
	if output.Body.Status != "ok" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "ok")
	}
}

// ========================================
// Readyz Tests
// ========================================

// mockDBPinger implements DBPinger for testing
type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping() error {
	return m.err
}

func TestNewReadyzHandler(t *testing.T) {
	db := &mockDBPinger{}
	handler := NewReadyzHandler(db)

	if handler == nil {
		t.Fatal("expected handler, got nil")
	}
	if handler.db != db {
		t.Error("db not set correctly")
	}
}

func TestReadyzHandler_Readyz_Success(t *testing.T) {
	db := &mockDBPinger{err: nil}
	handler := NewReadyzHandler(db)

	output, err := handler.Readyz(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output == nil {
		t.Fatal("expected output, got nil")
	}
	if output.Body.Status != "ok" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "ok")
	}
}

func TestReadyzHandler_Readyz_DBError(t *testing.T) {
	db := &mockDBPinger{err: errors.New("connection failed")}
	handler := NewReadyzHandler(db)

	_, err := handler.Readyz(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestReadyzHandler_Readyz_NilDB(t *testing.T) {
	handler := NewReadyzHandler(nil)

	output, err := handler.Readyz(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Status != "ok" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "ok")
	}
}

// ========================================
// getUserID Tests
// ========================================

func TestGetUserID_WithClaims(t *testing.T) {
	claims := &mw.UserClaims{
		UserID: "user-123",
	}
	ctx := context.WithValue(context.Background(), mw.UserClaimsKey, claims)

	userID := getUserID(ctx)
	if userID != "user-123" {
		t.Errorf("getUserID() = %q, want %q", userID, "user-123")
	}
}

func TestGetUserID_NoClaims(t *testing.T) {
	userID := getUserID(context.Background())
	if userID != "" {
		t.Errorf("getUserID() = %q, want empty", userID)
	}
}

// ========================================
// getUserClaims Tests
// ========================================

func TestGetUserClaims_WithClaims(t *testing.T) {
	expected := &mw.UserClaims{
		UserID: "user-456",
		Role:   models.RoleProvider,
		Name:   "Dr. Rao",
	}
	ctx := context.WithValue(context.Background(), mw.UserClaimsKey, expected)

	claims := getUserClaims(ctx)
	if claims == nil {
		t.Fatal("expected claims, got nil")
	}
	if claims.UserID != expected.UserID {
		t.Errorf("UserID = %q, want %q", claims.UserID, expected.UserID)
	}
	if claims.Role != expected.Role {
		t.Errorf("Role = %q, want %q", claims.Role, expected.Role)
	}
	if claims.Name != expected.Name {
		t.Errorf("Name = %q, want %q", claims.Name, expected.Name)
	}
}

func TestGetUserClaims_NoClaims(t *testing.T) {
	claims := getUserClaims(context.Background())
	if claims != nil {
		t.Errorf("expected nil, got %+v", claims)
	}
}

// ========================================
// Probe Routing Tests
// ========================================

func TestProbes_Routed(t *testing.T) {
	_, api := humatest.New(t)
	mw.PublicGet(api, "/api/v1/health", HealthCheck)
	mw.HiddenGet(api, "/healthz", Livez)
	mw.HiddenGet(api, "/readyz", NewReadyzHandler(&mockDBPinger{err: errors.New("down")}).Readyz)

	if resp := api.Get("/api/v1/health"); resp.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.Code)
	}
	if resp := api.Get("/healthz"); resp.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.Code)
	}
	if resp := api.Get("/readyz"); resp.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", resp.Code)
	}
}

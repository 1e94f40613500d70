package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/txn2/trip-planner/pkg/config"
	"github.com/txn2/trip-planner/pkg/revocation"
	revocationredis "github.com/txn2/trip-planner/pkg/revocation/redis"
	"github.com/txn2/trip-planner/pkg/search"
	"github.com/txn2/trip-planner/pkg/session"
	"github.com/txn2/trip-planner/pkg/user"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.SigningKey = testSigningKey
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

func TestVersion(t *testing.T) {
	if Version != "dev" {
		t.Errorf("expected Version 'dev', got %q", Version)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for missing signing key")
	}
}

func TestNew_MemoryBackends(t *testing.T) {
	s, err := New(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Logf("Close() error (non-fatal): %v", err)
		}
	}()

	if _, ok := s.Sessions.(*session.MemoryStore); !ok {
		t.Errorf("sessions = %T, want *session.MemoryStore", s.Sessions)
	}
	if _, ok := s.Users.(*user.MemoryStore); !ok {
		t.Errorf("users = %T, want *user.MemoryStore", s.Users)
	}
	if _, ok := s.Revocations.(*revocation.MemoryStore); !ok {
		t.Errorf("revocations = %T, want *revocation.MemoryStore", s.Revocations)
	}
	if s.Search != nil {
		t.Errorf("search = %T, want nil without an api key", s.Search)
	}

	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before Run = %d, want 503", rr.Code)
	}
}

func TestNew_ServesSwaggerDoc(t *testing.T) {
	s, err := New(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Fatalf("/swagger/doc.json status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "/auth/refresh") {
		t.Errorf("/swagger/doc.json body does not describe /auth/refresh")
	}
}

func TestNew_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Redis.Address = mr.Addr()
	cfg.Auth.Revocation = config.BackendRedis
	cfg.Cache.Backend = config.BackendRedis
	cfg.Search.SerpAPIKey = "test-key"

	s, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = s.Close() }()

	if _, ok := s.Revocations.(*revocationredis.Store); !ok {
		t.Errorf("revocations = %T, want *redis.Store", s.Revocations)
	}
	if _, ok := s.Search.(*search.CachedProvider); !ok {
		t.Errorf("search = %T, want *search.CachedProvider", s.Search)
	}
	if failures := s.Health.Run(context.Background()); len(failures) != 0 {
		t.Errorf("health failures = %v", failures)
	}

	reports, err := s.Sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(reports) != 2 || reports[0].Target != "revocations" || reports[1].Target != "sessions" {
		t.Errorf("reports = %+v", reports)
	}
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := memoryConfig()
	cfg.Redis.Address = addr
	cfg.Auth.Revocation = config.BackendRedis

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	s, err := New(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !s.Health.IsReady() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !s.Health.IsReady() {
		t.Fatal("server never became ready")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if s.Health.State() != "draining" {
		t.Errorf("state = %q, want draining", s.Health.State())
	}
}

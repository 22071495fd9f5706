package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"expressless/internal/config"
	"expressless/pkg/lambda"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Port:        "8080",
		Log:         config.LogConfig{Level: "error", Format: "text"},
		CORS:        config.CORSConfig{AllowOrigin: "*"},
		RateLimit:   config.RateLimitConfig{Burst: 20},
		Request:     config.RequestConfig{MaxBodyBytes: 1 << 20},
		JWT:         config.JWTConfig{Secret: "test-secret", Issuer: "expressless", ExpiryHours: 1},
		Metrics:     config.MetricsConfig{Enabled: true, Namespace: "test"},
	}
}

// TestNewContainer verifies that the container can be created successfully
func TestNewContainer(t *testing.T) {
	container, err := NewContainer(testConfig())
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}

	if container.Adapter == nil {
		t.Error("Adapter is nil")
	}
	if container.Logger == nil {
		t.Error("Logger is nil")
	}
	if container.Metrics == nil {
		t.Error("Metrics is nil")
	}
	if container.AuthService == nil {
		t.Error("AuthService is nil")
	}

	if err := container.Close(); err != nil {
		t.Errorf("Failed to close container: %v", err)
	}
}

func TestNewContainerRejectsInvalidConfig(t *testing.T) {
	if _, err := NewContainer(nil); err == nil {
		t.Error("Expected error for nil config")
	}

	cfg := testConfig()
	cfg.Environment = "moon"
	if _, err := NewContainer(cfg); err == nil {
		t.Error("Expected error for invalid environment")
	}
}

// TestContainerAdapter runs an event through the fully wired chain
func TestContainerAdapter(t *testing.T) {
	container, err := NewContainer(testConfig())
	if err != nil {
		t.Fatalf("Failed to create container: %v", err)
	}
	defer container.Close()

	out, err := container.Adapter.Handle(context.Background(), lambda.Event{
		HTTPMethod: "GET",
		Path:       "/health",
		Headers:    map[string]string{},
	})
	if err != nil {
		t.Fatalf("Failed to handle event: %v", err)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", out.StatusCode)
	}

	count, err := testutil.GatherAndCount(container.Metrics.Registry(), "test_invocations_total")
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected one invocation series, got %d", count)
	}
}

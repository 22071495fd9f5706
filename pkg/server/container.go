package server

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"expressless/internal/config"
	"expressless/internal/handlers"
	"expressless/internal/metrics"
	"expressless/internal/middleware"
	"expressless/pkg/lambda"
)

// SlowRequestThreshold is the latency above which invocations are reported
const SlowRequestThreshold = time.Second

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logrus.Logger
	Metrics     *metrics.Collector
	AuthService *middleware.AuthService
	Adapter     *lambda.Adapter
}

// NewContainer wires configuration, logging, metrics and the middleware
// chain into an Adapter
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.NewLogger()
	// Middleware log through the standard logger
	logrus.SetLevel(logger.GetLevel())
	logrus.SetFormatter(logger.Formatter)

	authService := middleware.NewAuthService(&middleware.AuthConfig{
		JWTSecret:     cfg.JWT.Secret,
		Issuer:        cfg.JWT.Issuer,
		TokenDuration: time.Duration(cfg.JWT.ExpiryHours) * time.Hour,
	})

	collector := metrics.NewCollector(cfg.Metrics, prometheus.NewRegistry())

	app := handlers.NewApp(&handlers.RouterConfig{
		Config:      cfg,
		AuthService: authService,
	})

	adapter := lambda.Adapt(app,
		lambda.WithLogger(logger),
		lambda.WithOnFinished(lambda.JoinOnFinished(
			middleware.StructuredLogger(logger),
			middleware.AuditLogger(logger),
			middleware.PerformanceMonitor(logger, SlowRequestThreshold),
			collector.OnFinished(),
		)),
	)

	logger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"mode":        config.GetDeploymentMode(),
		"metrics":     cfg.Metrics.Enabled,
	}).Info("Container initialized")

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Metrics:     collector,
		AuthService: authService,
		Adapter:     adapter,
	}, nil
}

// Close cleans up all resources
func (c *Container) Close() error {
	c.Logger.Info("Container closed")
	return nil
}

package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	"expressless/internal/config"
	"expressless/pkg/lambda"
)

// ErrManagerClosed is returned once Cleanup has closed the container
var ErrManagerClosed = errors.New("container manager is closed")

// LoadConfigFunc produces the configuration for a new container
type LoadConfigFunc func() (*config.Config, error)

// ContainerManager keeps one container alive across invocations of a warm
// Lambda execution environment
type ContainerManager struct {
	load        LoadConfigFunc
	container   *Container
	lastUsed    time.Time
	invocations int64
	mu          sync.RWMutex
	initErr     error
	initOnce    sync.Once
	closed      bool
}

var (
	globalContainerManager *ContainerManager
	containerManagerOnce   sync.Once
)

// GetContainerManager returns the process-wide manager, loading
// configuration with config.GetOptimizedConfig
func GetContainerManager() *ContainerManager {
	containerManagerOnce.Do(func() {
		globalContainerManager = NewContainerManager(config.GetOptimizedConfig)
	})
	return globalContainerManager
}

// NewContainerManager creates a manager that builds its container from the
// configuration load returns
func NewContainerManager(load LoadConfigFunc) *ContainerManager {
	return &ContainerManager{load: load}
}

// GetContainer returns the container, building it on first use. A failed
// build is remembered and returned on every later call.
func (cm *ContainerManager) GetContainer(ctx context.Context) (*Container, error) {
	cm.mu.RLock()
	closed := cm.closed
	cm.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}

	cm.initOnce.Do(func() {
		cfg, err := cm.load()
		if err != nil {
			cm.initErr = err
			return
		}
		container, err := NewContainer(cfg)
		if err != nil {
			cm.initErr = err
			return
		}

		cm.mu.Lock()
		cm.container = container
		cm.lastUsed = time.Now()
		cm.mu.Unlock()
	})
	if cm.initErr != nil {
		return nil, cm.initErr
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.closed {
		return nil, ErrManagerClosed
	}
	cm.lastUsed = time.Now()
	cm.invocations++
	return cm.container, nil
}

// Handle serves an API Gateway REST event with the managed container
func (cm *ContainerManager) Handle(ctx context.Context, event lambda.Event) (lambda.Artifact, error) {
	container, err := cm.GetContainer(ctx)
	if err != nil {
		return lambda.Artifact{}, err
	}
	cold := cm.Invocations() == 1

	out, err := container.Adapter.Handle(ctx, event)
	if cold {
		container.Logger.WithFields(logrus.Fields{
			"cold_start": true,
			"path":       event.Path,
		}).Debug("First invocation served")
	}
	return out, err
}

// HandleV2 serves an API Gateway HTTP API event with the managed container
func (cm *ContainerManager) HandleV2(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	container, err := cm.GetContainer(ctx)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}
	return container.Adapter.HandleV2(ctx, event)
}

// Invocations returns how many times the container was handed out
func (cm *ContainerManager) Invocations() int64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.invocations
}

// IsHealthy reports whether a container exists and was used recently
func (cm *ContainerManager) IsHealthy() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.container == nil {
		return false
	}

	// Check if container is stale (older than 5 minutes)
	return time.Since(cm.lastUsed) < 5*time.Minute
}

// Cleanup closes the container. Later calls to GetContainer, Handle and
// HandleV2 fail with ErrManagerClosed.
func (cm *ContainerManager) Cleanup() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.closed = true

	if cm.container != nil {
		if err := cm.container.Close(); err != nil {
			return err
		}
		cm.container = nil
	}
	return nil
}

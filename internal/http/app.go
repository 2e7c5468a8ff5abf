package http

import (
	"context"

	"listingportal_backend/platform/logger"
)

// HealthChecker reports readiness of the backing store.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App gathers the dependencies the router mounts.
type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Health  HealthChecker
	Modules []Module
}

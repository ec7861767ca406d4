package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is a backing service a job depends on, such as a database or a
// redis client. Operations and sources borrow its connection for the length
// of a run.
type Component interface {
	// Name returns the unique name of the component for registration.
	Name() string

	// Start connects the component.
	Start(ctx context.Context) error

	// Stop releases the component's resources.
	Stop(ctx context.Context) error

	// Health returns the current health status of the component.
	Health(ctx context.Context) Health
}

// Description summarizes a component for the job's startup log.
type Description struct {
	// Name is the display name. If empty, the component's Name() is used.
	Name string
	// Type categorizes the component: "database", "redis", "kafka".
	Type string
	// Details is a one-liner such as "sqlite file=orders.db".
	Details string
}

// Describable is optionally implemented by components to report how they
// are configured.
type Describable interface {
	Describe() Description
}

package system

import "context"

// Service is a component with background work, like the maintenance janitor
// or the Redis trial tracker. The Manager starts services in registration
// order and stops them in reverse.
type Service interface {
	// Name identifies the service in logs and start errors. It must be unique.
	Name() string
	Start(ctx context.Context) error
	// Stop returns once background work has ended or ctx is done.
	Stop(ctx context.Context) error
}

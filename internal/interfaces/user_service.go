package interfaces

import "context"

// UserService manages user registration and cascading removal
type UserService interface {
	// Register adds the user id to the registry, idempotently
	Register(ctx context.Context, userID string) error

	// Delete removes the user and cascades through workflows, branches,
	// queue, executed job instances, and slide metadata. Returns false when
	// the user is not registered.
	Delete(ctx context.Context, userID string) (bool, error)

	IsRegistered(ctx context.Context, userID string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Status(ctx context.Context, userID string) (map[string]string, error)
}

package trip

import (
	"context"

	"taxihub/internal/types"
)

// Store is the persistence boundary for trips.
type Store interface {
	Create(ctx context.Context, req Request) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	Update(ctx context.Context, id string, patch Patch) (Record, error)
	// ActiveFor returns the user's non-terminal trips, as rider or as driver
	// depending on role.
	ActiveFor(ctx context.Context, userID string, role types.Role) ([]Record, error)
}

// Directory resolves identities: bearer credentials at connect time and user
// summaries when building trip representations.
type Directory interface {
	UserByID(ctx context.Context, id string) (types.User, error)
	UserByToken(ctx context.Context, token string) (types.User, error)
}

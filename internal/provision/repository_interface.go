package provision

import "context"

type Repository interface {
	Add(ctx context.Context, r *Resource) error
	ListByUser(ctx context.Context, userID int64) ([]Resource, error)
	// FindOwned returns ErrNotOwner when userID has no record of resourceID.
	FindOwned(ctx context.Context, userID, resourceID int64) (*Resource, error)
	Remove(ctx context.Context, userID, resourceID int64) error
}

// Package identity reconciles contact observations into identity clusters.
package identity

import (
	"context"
	"errors"

	"github.com/Ramsey-B/iris/pkg/models"
)

// Store is the contact persistence the engine runs against. All reads exclude soft-deleted rows.
type Store interface {
	// FindByEmailOrPhone returns contacts matching either key, each at most once. Both nil yields none.
	FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error)
	// FindByID returns nil, nil when the contact does not exist.
	FindByID(ctx context.Context, id int64) (*models.Contact, error)
	// FindClusterByPrimaryID returns the primary and every contact linked to it, oldest first.
	FindClusterByPrimaryID(ctx context.Context, primaryID int64) ([]models.Contact, error)
	// Create inserts a contact. When the (email, phone) pair already exists the existing row is returned.
	Create(ctx context.Context, req models.CreateContactRequest) (*models.Contact, error)
	Update(ctx context.Context, id int64, req models.UpdateContactRequest) (*models.Contact, error)
	// UpdateMany applies req to every id. An empty id list is a no-op.
	UpdateMany(ctx context.Context, ids []int64, req models.UpdateContactRequest) error
	// WithinTx runs fn in one store transaction. Calls made with the ctx passed to fn join it.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ErrPrimaryNotInCluster means the winning primary vanished from its own cluster between
// resolution and response assembly. It indicates corrupted link state.
var ErrPrimaryNotInCluster = errors.New("primary contact missing from its cluster")

// ErrUnstableCluster is returned when concurrent merges keep demoting the resolved primaries.
var ErrUnstableCluster = errors.New("cluster resolution did not settle")

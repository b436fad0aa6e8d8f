package contact

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/iris/pkg/models"
)

type memoryTxKey struct{}

// MemoryRepository is an in-process contact store with the same contract as Repository.
// Transactions are serialised and roll back by restoring a snapshot.
type MemoryRepository struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	rows   map[int64]models.Contact
	nextID int64
	now    func() time.Time
}

type MemoryOption func(*MemoryRepository)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) MemoryOption {
	return func(r *MemoryRepository) { r.now = now }
}

func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		rows: make(map[int64]models.Contact),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed stores contacts verbatim, assigning ids to rows without one. It bypasses every check
// and exists to build arbitrary link states.
func (r *MemoryRepository) Seed(contacts ...models.Contact) []models.Contact {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.ID == 0 {
			r.nextID++
			c.ID = r.nextID
		} else if c.ID > r.nextID {
			r.nextID = c.ID
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = r.now()
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = c.CreatedAt
		}
		r.rows[c.ID] = c
		out = append(out, c)
	}
	return out
}

// All returns every row including soft-deleted ones, ordered by id.
func (r *MemoryRepository) All() []models.Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Contact, 0, len(r.rows))
	for _, c := range r.rows {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.RLock()
	snapshot := make(map[int64]models.Contact, len(r.rows))
	for id, c := range r.rows {
		snapshot[id] = c
	}
	nextID := r.nextID
	r.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, true)); err != nil {
		r.mu.Lock()
		r.rows = snapshot
		r.nextID = nextID
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *MemoryRepository) FindByEmailOrPhone(_ context.Context, email, phone *string) ([]models.Contact, error) {
	if email == nil && phone == nil {
		return []models.Contact{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(func(c models.Contact) bool {
		return (email != nil && c.Email != nil && *c.Email == *email) ||
			(phone != nil && c.PhoneNumber != nil && *c.PhoneNumber == *phone)
	}), nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id int64) (*models.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.rows[id]
	if !ok || c.DeletedAt != nil {
		return nil, nil
	}
	return &c, nil
}

func (r *MemoryRepository) FindClusterByPrimaryID(_ context.Context, primaryID int64) ([]models.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(func(c models.Contact) bool {
		return c.ID == primaryID || (c.LinkedID != nil && *c.LinkedID == primaryID)
	}), nil
}

func (r *MemoryRepository) Create(_ context.Context, req models.CreateContactRequest) (*models.Contact, error) {
	if req.Email == nil && req.PhoneNumber == nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create contact")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.rows {
		if c.DeletedAt == nil && samePair(c, req.Email, req.PhoneNumber) {
			existing := c
			return &existing, nil
		}
	}

	now := r.now()
	r.nextID++
	c := models.Contact{
		ID:             r.nextID,
		Email:          copyString(req.Email),
		PhoneNumber:    copyString(req.PhoneNumber),
		LinkedID:       copyInt64(req.LinkedID),
		LinkPrecedence: req.LinkPrecedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if c.LinkPrecedence == "" {
		c.LinkPrecedence = models.LinkPrecedencePrimary
	}
	r.rows[c.ID] = c
	return &c, nil
}

func (r *MemoryRepository) Update(_ context.Context, id int64, req models.UpdateContactRequest) (*models.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok || c.DeletedAt != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "contact %d not found", id)
	}
	r.apply(&c, req)
	return &c, nil
}

func (r *MemoryRepository) UpdateMany(_ context.Context, ids []int64, req models.UpdateContactRequest) error {
	if len(ids) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		c, ok := r.rows[id]
		if !ok || c.DeletedAt != nil {
			continue
		}
		r.apply(&c, req)
	}
	return nil
}

// SoftDelete marks a contact deleted. Deleted rows are invisible to every read.
func (r *MemoryRepository) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "contact %d not found", id)
	}
	now := r.now()
	c.DeletedAt = &now
	r.rows[id] = c
	return nil
}

// apply must be called with mu held.
func (r *MemoryRepository) apply(c *models.Contact, req models.UpdateContactRequest) {
	c.LinkedID = copyInt64(req.LinkedID)
	if req.LinkPrecedence != "" {
		c.LinkPrecedence = req.LinkPrecedence
	}
	c.UpdatedAt = r.now()
	r.rows[c.ID] = *c
}

// sorted must be called with mu held.
func (r *MemoryRepository) sorted(match func(models.Contact) bool) []models.Contact {
	out := []models.Contact{}
	for _, c := range r.rows {
		if c.DeletedAt == nil && match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Older(out[j]) })
	return out
}

func samePair(c models.Contact, email, phone *string) bool {
	return deref(c.Email) == deref(email) && deref(c.PhoneNumber) == deref(phone)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

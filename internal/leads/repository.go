package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter ListFilter) ([]*Lead, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Lead, error)
}

// InMemoryRepository keeps leads in process memory. Used when DATABASE_URL is unset.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lead := req.toLead(uuid.New().String(), r.now())

	r.mu.Lock()
	r.leads[lead.ID] = lead
	r.mu.Unlock()

	out := *lead
	return &out, nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	out := *lead
	return &out, nil
}

// List returns leads newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	filter = filter.normalized()

	r.mu.RLock()
	all := make([]*Lead, 0, len(r.leads))
	for _, l := range r.leads {
		if filter.matches(l) {
			cp := *l
			all = append(all, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if filter.Offset >= len(all) {
		return []*Lead{}, nil
	}
	all = all[filter.Offset:]
	if len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

// UpdateStatus moves a lead to a new follow-up status.
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, status Status) (*Lead, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	lead.Status = status
	lead.UpdatedAt = r.now()
	out := *lead
	return &out, nil
}

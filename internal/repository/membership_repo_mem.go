package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Domenick1991/spabooking/internal/domain"
)

type MemoryMembershipRepository struct {
	mu          sync.RWMutex
	memberships map[domain.ID]domain.Membership
}

func NewMemoryMembershipRepository() *MemoryMembershipRepository {
	return &MemoryMembershipRepository{memberships: make(map[domain.ID]domain.Membership)}
}

func (r *MemoryMembershipRepository) Get(_ context.Context, customerID domain.ID) (*domain.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.memberships[customerID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "membership", ID: customerID.String()}
	}
	return &m, nil
}

func (r *MemoryMembershipRepository) Save(_ context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.memberships[m.CustomerID] = *m
	return nil
}

func (r *MemoryMembershipRepository) MarkExpired(_ context.Context, customerID domain.ID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.memberships[customerID]
	if !ok {
		return &domain.NotFoundError{Entity: "membership", ID: customerID.String()}
	}
	if m.Status == domain.MembershipStatusActive && m.EndDate.Before(now) {
		m.Status = domain.MembershipStatusExpired
		r.memberships[customerID] = m
	}
	return nil
}

func (r *MemoryMembershipRepository) ExpireBefore(_ context.Context, deadline time.Time) ([]domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []domain.Membership
	for id, m := range r.memberships {
		if m.Status == domain.MembershipStatusActive && m.EndDate.Before(deadline) {
			m.Status = domain.MembershipStatusExpired
			r.memberships[id] = m
			expired = append(expired, m)
		}
	}
	return expired, nil
}

func errDuplicate(id domain.ID) error {
	return fmt.Errorf("record %s already exists", id)
}

var _ MembershipRepository = (*MemoryMembershipRepository)(nil)

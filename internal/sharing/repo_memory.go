package sharing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]map[string]ShareGrant // documentID -> granteeID -> grant
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]map[string]ShareGrant)}
}

func (r *MemoryRepo) Upsert(ctx context.Context, grant ShareGrant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byGrantee, ok := r.data[grant.DocumentID]
	if !ok {
		byGrantee = make(map[string]ShareGrant)
		r.data[grant.DocumentID] = byGrantee
	}
	byGrantee[grant.GranteeID] = grant
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, documentID, granteeID string) (ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return ShareGrant{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	grant, ok := r.data[documentID][granteeID]
	if !ok {
		return ShareGrant{}, ErrNotFound
	}
	return grant, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, documentID, granteeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[documentID][granteeID]; !ok {
		return ErrNotFound
	}
	delete(r.data[documentID], granteeID)
	return nil
}

func (r *MemoryRepo) ListByDocument(ctx context.Context, documentID string) ([]ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ShareGrant
	for _, grant := range r.data[documentID] {
		out = append(out, grant)
	}
	sortGrants(out)
	return out, nil
}

func (r *MemoryRepo) ListActiveByGrantee(ctx context.Context, granteeID string, now time.Time) ([]ShareGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ShareGrant
	for _, byGrantee := range r.data {
		if grant, ok := byGrantee[granteeID]; ok && !grant.Expired(now) {
			out = append(out, grant)
		}
	}
	sortGrants(out)
	return out, nil
}

func (r *MemoryRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for docID, byGrantee := range r.data {
		for granteeID, grant := range byGrantee {
			if grant.ExpiresAt != nil && grant.ExpiresAt.Before(cutoff) {
				delete(byGrantee, granteeID)
				removed++
			}
		}
		if len(byGrantee) == 0 {
			delete(r.data, docID)
		}
	}
	return removed, nil
}

func sortGrants(grants []ShareGrant) {
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].CreatedAt.After(grants[j].CreatedAt)
	})
}

var _ Repo = (*MemoryRepo)(nil)

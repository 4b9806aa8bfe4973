package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"settlement-backend/internal/models"
)

// In-memory repository implementations backing tests and DB-less dev mode.
// They mirror the gorm implementations' semantics, including the optimistic
// MarkTerminal transition.

type MemoryRequestRepository struct {
	mu       sync.Mutex
	requests map[string]*models.Request
}

func NewMemoryRequestRepository() *MemoryRequestRepository {
	return &MemoryRequestRepository{requests: make(map[string]*models.Request)}
}

func (r *MemoryRequestRepository) Create(ctx context.Context, req *models.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *MemoryRequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *MemoryRequestRepository) FindByRequester(ctx context.Context, requester string, limit, offset int) ([]models.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Request
	for _, req := range r.requests {
		if req.Requester == requester {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRequestRepository) FindPendingExpired(ctx context.Context, assetID uint64, now time.Time, limit int) ([]models.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Request
	for _, req := range r.requests {
		if req.AssetID == assetID && req.Status == models.RequestStatusPending && !req.Deadline.After(now) {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRequestRepository) MarkTerminal(ctx context.Context, id string, status models.RequestStatus, resultAmount, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != models.RequestStatusPending {
		return false, nil
	}
	req.Status = status
	req.ResultAmount = resultAmount
	req.RefundReason = reason
	req.UpdatedAt = time.Now()
	return true, nil
}

type MemoryParticipantRepository struct {
	mu           sync.Mutex
	participants map[string]*models.Participant
}

func NewMemoryParticipantRepository() *MemoryParticipantRepository {
	return &MemoryParticipantRepository{participants: make(map[string]*models.Participant)}
}

func (r *MemoryParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.participants[p.Address] = &cp
	return nil
}

func (r *MemoryParticipantRepository) GetByAddress(ctx context.Context, address string) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[address]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryParticipantRepository) UpdateLastRequest(ctx context.Context, address string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[address]
	if !ok {
		return ErrNotFound
	}
	p.LastRequestAt = at
	return nil
}

func (r *MemoryParticipantRepository) AppendRequestID(ctx context.Context, address, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[address]
	if !ok {
		return ErrNotFound
	}
	return p.SetRequestIDList(append(p.RequestIDList(), requestID))
}

type MemoryAssetRepository struct {
	mu     sync.Mutex
	assets map[string]*models.Asset
	nextID uint64
}

func NewMemoryAssetRepository() *MemoryAssetRepository {
	return &MemoryAssetRepository{assets: make(map[string]*models.Asset)}
}

func (r *MemoryAssetRepository) Create(ctx context.Context, a *models.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	cp := *a
	r.assets[a.Ticker] = &cp
	return nil
}

func (r *MemoryAssetRepository) GetByTicker(ctx context.Context, ticker string) (*models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[ticker]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAssetRepository) List(ctx context.Context) ([]models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Asset
	for _, a := range r.assets {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (r *MemoryAssetRepository) Delete(ctx context.Context, ticker string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assets, ticker)
	return nil
}

package authflowrepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-oidc-server/auth"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/pkg/errors"
)

var _ auth.RequestRepo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory store of authorization requests
// waiting for the end-user to log in.
type InMemoryRepo struct {
	mu       sync.RWMutex
	requests map[string]*auth.PendingRequest
	nowFunc  func() time.Time
}

// NewInMemoryRepo creates a new in-memory pending request repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		requests: make(map[string]*auth.PendingRequest),
		nowFunc:  time.Now,
	}
}

// Put stores or replaces a pending request
func (r *InMemoryRepo) Put(_ context.Context, req *auth.PendingRequest) error {
	if req == nil || req.ID == "" {
		return errors.New("request id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests[req.ID] = copyRequest(req)
	return nil
}

// Get retrieves a pending request. Expired requests are reported as not found.
func (r *InMemoryRepo) Get(_ context.Context, id string) (*auth.PendingRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, exists := r.requests[id]
	if !exists || !r.nowFunc().Before(req.ExpiresAt) {
		return nil, oautherrors.ErrNotFound
	}
	return copyRequest(req), nil
}

// Delete removes a pending request
func (r *InMemoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.requests, id)
	return nil
}

// Sweep drops expired requests and returns how many were removed.
func (r *InMemoryRepo) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	n := 0
	for id, req := range r.requests {
		if !now.Before(req.ExpiresAt) {
			delete(r.requests, id)
			n++
		}
	}
	return n
}

func copyRequest(req *auth.PendingRequest) *auth.PendingRequest {
	cp := *req
	if req.Params != nil {
		params := *req.Params
		if req.Params.Credentials.Custom != nil {
			params.Credentials.Custom = make(map[string]string, len(req.Params.Credentials.Custom))
			for k, v := range req.Params.Credentials.Custom {
				params.Credentials.Custom[k] = v
			}
		}
		cp.Params = &params
	}
	return &cp
}

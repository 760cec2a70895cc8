package fakesessionrepo

import (
	"context"
	"sync"
	"time"

	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[string]*sessions.Session
	sids     map[string]string // sid to session id
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.Session),
		sids:     make(map[string]string),
	}
}

func (sr *FakeSessionRepo) Create(_ context.Context, session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.sessions[session.ID]; ok {
		return oautherrors.ErrAlreadyExists
	}
	sr.sessions[session.ID] = session.Clone()
	sr.sids[session.Sid] = session.ID
	return nil
}

func (sr *FakeSessionRepo) Get(_ context.Context, id string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	s, ok := sr.sessions[id]
	if !ok {
		return nil, oautherrors.ErrNotFound
	}
	return s.Clone(), nil
}

func (sr *FakeSessionRepo) GetBySid(ctx context.Context, sid string) (*sessions.Session, error) {
	sr.lock.RLock()
	id, ok := sr.sids[sid]
	sr.lock.RUnlock()
	if !ok {
		return nil, oautherrors.ErrNotFound
	}
	return sr.Get(ctx, id)
}

func (sr *FakeSessionRepo) Update(_ context.Context, id string, fn func(*sessions.Session) error) (*sessions.Session, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	s, ok := sr.sessions[id]
	if !ok {
		return nil, oautherrors.ErrNotFound
	}
	updated := s.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	sr.sessions[id] = updated
	return updated.Clone(), nil
}

func (sr *FakeSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	n := 0
	for id, s := range sr.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(sr.sids, s.Sid)
			delete(sr.sessions, id)
			n++
		}
	}
	return n, nil
}

package tokenfakerepo

import (
	"context"
	"sync"
	"time"

	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/jrsteele09/go-oidc-server/token"
)

var _ token.Repo = (*FakeTokenRepo)(nil)

type FakeTokenRepo struct {
	tokens map[string]*token.Token
	grants map[string][]string // grant ID to token values
	lock   sync.RWMutex
}

func NewFakeTokensRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		tokens: make(map[string]*token.Token),
		grants: make(map[string][]string),
	}
}

func (tr *FakeTokenRepo) Put(_ context.Context, t *token.Token) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	c := *t
	tr.tokens[t.Value] = &c
	if t.GrantID != "" {
		tr.grants[t.GrantID] = append(tr.grants[t.GrantID], t.Value)
	}
	return nil
}

func (tr *FakeTokenRepo) Get(_ context.Context, value string) (*token.Token, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	t, ok := tr.tokens[value]
	if !ok {
		return nil, oautherrors.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (tr *FakeTokenRepo) Deactivate(_ context.Context, value string) (bool, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	t, ok := tr.tokens[value]
	if !ok {
		return false, oautherrors.ErrNotFound
	}
	if !t.Active {
		return false, nil
	}
	t.Active = false
	return true, nil
}

func (tr *FakeTokenRepo) DeactivateGrant(_ context.Context, grantID string) (int, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	n := 0
	for _, v := range tr.grants[grantID] {
		if t, ok := tr.tokens[v]; ok && t.Active {
			t.Active = false
			n++
		}
	}
	return n, nil
}

// DeleteExpired drops expired tokens and prunes them from the grant index;
// grants left without tokens are removed.
func (tr *FakeTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	n := 0
	touched := make(map[string]struct{})
	for v, t := range tr.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(tr.tokens, v)
			if t.GrantID != "" {
				touched[t.GrantID] = struct{}{}
			}
			n++
		}
	}
	for grantID := range touched {
		live := tr.grants[grantID][:0]
		for _, v := range tr.grants[grantID] {
			if _, ok := tr.tokens[v]; ok {
				live = append(live, v)
			}
		}
		if len(live) == 0 {
			delete(tr.grants, grantID)
			continue
		}
		tr.grants[grantID] = live
	}
	return n, nil
}

// GrantCount is the number of grants still indexed.
func (tr *FakeTokenRepo) GrantCount() int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return len(tr.grants)
}

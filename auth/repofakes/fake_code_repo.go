package fakecoderepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-oidc-server/auth"
	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
)

var _ auth.CodeRepo = (*FakeCodeRepo)(nil)

type codeEntry struct {
	code     auth.AuthorizationCode
	consumed bool
}

type FakeCodeRepo struct {
	codes map[string]*codeEntry
	lock  sync.Mutex
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{
		codes: make(map[string]*codeEntry),
	}
}

func (cr *FakeCodeRepo) Put(_ context.Context, code *auth.AuthorizationCode) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	if _, ok := cr.codes[code.Code]; ok {
		return oautherrors.ErrAlreadyExists
	}
	cr.codes[code.Code] = &codeEntry{code: copyCode(code)}
	return nil
}

func (cr *FakeCodeRepo) Consume(_ context.Context, code string) (*auth.AuthorizationCode, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	e, ok := cr.codes[code]
	if !ok {
		return nil, oautherrors.ErrNotFound
	}
	c := copyCode(&e.code)
	if e.consumed {
		return &c, oautherrors.ErrCodeConsumed
	}
	e.consumed = true
	return &c, nil
}

func (cr *FakeCodeRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	n := 0
	for k, e := range cr.codes {
		if !now.Before(e.code.ExpiresAt) {
			delete(cr.codes, k)
			n++
		}
	}
	return n, nil
}

func copyCode(c *auth.AuthorizationCode) auth.AuthorizationCode {
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	return cp
}

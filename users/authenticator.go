package users

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	oautherrors "github.com/jrsteele09/go-oidc-server/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrInvalidCredentials = errors.New("invalid resource owner credentials")

// Authenticator verifies end-user credentials against the user store.
type Authenticator struct {
	repo         UserRepo
	customParams []string
	nowFunc      func() time.Time
}

type AuthenticatorOption func(*Authenticator)

// WithCustomParams names the request parameters that, taken together, identify
// a user by directory attribute (for example "uid" and "inum").
func WithCustomParams(names []string) AuthenticatorOption {
	return func(a *Authenticator) {
		a.customParams = names
	}
}

func NewAuthenticator(repo UserRepo, options ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{repo: repo, nowFunc: time.Now}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// CustomParams is the configured custom parameter list.
func (a *Authenticator) CustomParams() []string {
	return a.customParams
}

// AuthenticatePassword checks username (or email) and password.
func (a *Authenticator) AuthenticatePassword(_ context.Context, username, password string) (*User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := a.repo.GetByUsername(username)
	if oautherrors.Is(err, oautherrors.ErrNotFound) {
		user, err = a.repo.GetByEmail(username)
	}
	if err != nil {
		if oautherrors.Is(err, oautherrors.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "[Authenticator.AuthenticatePassword]")
	}
	if !CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return a.loggedIn(user)
}

// AuthenticateCustom identifies a user by the configured custom parameters.
// It reports ok=false when params do not carry every configured parameter, so
// the caller can fall back to other methods.
func (a *Authenticator) AuthenticateCustom(_ context.Context, params map[string]string) (user *User, ok bool, err error) {
	if len(a.customParams) == 0 {
		return nil, false, nil
	}
	for _, name := range a.customParams {
		if params[name] == "" {
			return nil, false, nil
		}
	}

	all, err := a.repo.List(0, 0)
	if err != nil {
		return nil, true, errors.Wrap(err, "[Authenticator.AuthenticateCustom]")
	}
	var match *User
	for _, u := range all {
		if a.matches(u, params) {
			if match != nil {
				log.Warn().Strs("params", a.customParams).Msg("custom authentication parameters match several users")
				return nil, true, ErrInvalidCredentials
			}
			match = u
		}
	}
	if match == nil {
		return nil, true, ErrInvalidCredentials
	}
	user, err = a.loggedIn(match)
	return user, true, err
}

// matches compares every attribute in constant time since some of them, such
// as pwd, are secrets.
func (a *Authenticator) matches(u *User, params map[string]string) bool {
	equal := 1
	for _, name := range a.customParams {
		equal &= subtle.ConstantTimeCompare([]byte(u.Attribute(name)), []byte(params[name]))
	}
	return equal == 1
}

func (a *Authenticator) loggedIn(user *User) (*User, error) {
	if user.Blocked {
		return nil, ErrInvalidCredentials
	}
	user.LastLogin = a.nowFunc()
	if err := a.repo.Upsert(user); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}
	return user, nil
}

package clients

import (
	"encoding/json"
	"net/url"

	"github.com/jrsteele09/go-oidc-server/internal/utils"
	"github.com/jrsteele09/go-oidc-server/oauth2"
	"github.com/jrsteele09/go-oidc-server/token"
	"github.com/jrsteele09/go-oidc-server/token/keys"
	"github.com/pkg/errors"
)

// AuthMethod is the token_endpoint_auth_method of a client.
type AuthMethod string

const (
	AuthMethodNone              AuthMethod = "none"
	AuthMethodClientSecretBasic AuthMethod = "client_secret_basic"
	AuthMethodClientSecretPost  AuthMethod = "client_secret_post"
	AuthMethodClientSecretJWT   AuthMethod = "client_secret_jwt"
	AuthMethodPrivateKeyJWT     AuthMethod = "private_key_jwt"
)

func (m AuthMethod) valid() bool {
	switch m {
	case AuthMethodNone, AuthMethodClientSecretBasic, AuthMethodClientSecretPost, AuthMethodClientSecretJWT, AuthMethodPrivateKeyJWT:
		return true
	}
	return false
}

// UsesSecret reports whether clients with this method are issued a secret.
func (m AuthMethod) UsesSecret() bool {
	return m != AuthMethodNone
}

type SubjectType string

const (
	SubjectTypePublic   SubjectType = "public"
	SubjectTypePairwise SubjectType = "pairwise"
)

type ApplicationType string

const (
	ApplicationTypeWeb    ApplicationType = "web"
	ApplicationTypeNative ApplicationType = "native"
)

// StringList accepts either a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = StringList{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.Wrap(err, "expected a string or an array of strings")
	}
	*l = many
	return nil
}

// Metadata is the client metadata accepted by registration and update (RFC 7591 / OIDC Registration).
type Metadata struct {
	RedirectURIs                      []string          `json:"redirect_uris,omitempty"`
	PostLogoutRedirectURIs            []string          `json:"post_logout_redirect_uris,omitempty"`
	ClaimsRedirectURIs                []string          `json:"claims_redirect_uris,omitempty"`
	ResponseTypes                     []string          `json:"response_types,omitempty"`
	GrantTypes                        []string          `json:"grant_types,omitempty"`
	ApplicationType                   ApplicationType   `json:"application_type,omitempty"`
	ClientName                        string            `json:"client_name,omitempty"`
	ClientURI                         string            `json:"client_uri,omitempty"`
	LogoURI                           string            `json:"logo_uri,omitempty"`
	PolicyURI                         string            `json:"policy_uri,omitempty"`
	TOSURI                            string            `json:"tos_uri,omitempty"`
	Contacts                          []string          `json:"contacts,omitempty"`
	Scope                             string            `json:"scope,omitempty"`
	JWKSURI                           string            `json:"jwks_uri,omitempty"`
	JWKS                              json.RawMessage   `json:"jwks,omitempty"`
	SectorIdentifierURI               string            `json:"sector_identifier_uri,omitempty"`
	SubjectType                       SubjectType       `json:"subject_type,omitempty"`
	IDTokenSignedResponseAlg          string            `json:"id_token_signed_response_alg,omitempty"`
	RequestObjectSigningAlg           string            `json:"request_object_signing_alg,omitempty"`
	TokenEndpointAuthMethod           AuthMethod        `json:"token_endpoint_auth_method,omitempty"`
	TokenEndpointAuthSigningAlg       string            `json:"token_endpoint_auth_signing_alg,omitempty"`
	FrontChannelLogoutURI             string            `json:"frontchannel_logout_uri,omitempty"`
	FrontChannelLogoutSessionRequired bool              `json:"frontchannel_logout_session_required,omitempty"`
	BackchannelLogoutURIs             StringList        `json:"backchannel_logout_uri,omitempty"`
	BackchannelLogoutSessionRequired  bool              `json:"backchannel_logout_session_required,omitempty"`
	CustomAttributes                  map[string]string `json:"custom_attributes,omitempty"`

	// ClientSecret is only read on update, where it must echo the current secret.
	ClientSecret string `json:"client_secret,omitempty"`
}

// Client is a registered client. Its JSON form is the registration response
// and the stored record.
type Client struct {
	ID                      string `json:"client_id"`
	Secret                  string `json:"client_secret,omitempty"`
	IDIssuedAt              int64  `json:"client_id_issued_at"`
	SecretExpiresAt         int64  `json:"client_secret_expires_at"`
	RegistrationAccessToken string `json:"registration_access_token,omitempty"`
	RegistrationClientURI   string `json:"registration_client_uri,omitempty"`
	Metadata
}

// IsPublic reports clients that cannot keep a secret.
func (c *Client) IsPublic() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

// HasRedirectURI reports an exact match against the registered redirect URIs.
func (c *Client) HasRedirectURI(uri string) bool {
	return utils.Contains(c.RedirectURIs, uri)
}

func (c *Client) HasPostLogoutRedirectURI(uri string) bool {
	return utils.Contains(c.PostLogoutRedirectURIs, uri)
}

func (c *Client) AllowsGrantType(gt oauth2.GrantType) bool {
	return utils.Contains(c.GrantTypes, string(gt))
}

// AllowsResponseTypes reports whether every component of rt was registered.
func (c *Client) AllowsResponseTypes(rt oauth2.ResponseTypes) bool {
	if len(rt) == 0 {
		return false
	}
	for _, t := range rt {
		if !utils.Contains(c.ResponseTypes, string(t)) {
			return false
		}
	}
	return true
}

// Scopes is the registered scope list.
func (c *Client) Scopes() []string {
	return utils.SplitScopes(c.Scope)
}

// IntersectScopes keeps the requested scopes the client is allowed, in request
// order. Anything else is dropped without error.
func (c *Client) IntersectScopes(requested []string) []string {
	allowed := c.Scopes()
	granted := make([]string, 0, len(requested))
	for _, s := range utils.Dedupe(requested) {
		if utils.Contains(allowed, s) {
			granted = append(granted, s)
		}
	}
	return granted
}

// IDTokenAlg is the algorithm ID and logout tokens for this client are signed with.
func (c *Client) IDTokenAlg() keys.Algorithm {
	return keys.Algorithm(c.IDTokenSignedResponseAlg)
}

// KeyRef is the key material used to sign for, and verify assertions from, this client.
func (c *Client) KeyRef() (keys.KeyRef, error) {
	ref := keys.KeyRef{JWKSURI: c.JWKSURI}
	if c.Secret != "" {
		ref.Secret = []byte(c.Secret)
	}
	if len(c.JWKS) > 0 {
		set, err := keys.ParseJWKS(c.JWKS)
		if err != nil {
			return keys.KeyRef{}, err
		}
		ref.JWKS = set
	}
	return ref, nil
}

// SigningKeyRef is KeyRef without the client's own public keys, which are
// for verifying what the client signs, not what the server signs.
func (c *Client) SigningKeyRef() keys.KeyRef {
	return keys.KeyRef{Secret: []byte(c.Secret)}
}

// SectorHost is the host pairwise subjects are computed for.
func (c *Client) SectorHost() string {
	if c.SectorIdentifierURI != "" {
		return hostOf(c.SectorIdentifierURI)
	}
	if len(c.RedirectURIs) > 0 {
		return hostOf(c.RedirectURIs[0])
	}
	return ""
}

// SubjectFor returns the sub claim this client sees for localSubject.
func (c *Client) SubjectFor(localSubject, salt string) string {
	if c.SubjectType != SubjectTypePairwise || localSubject == "" {
		return localSubject
	}
	return token.PairwiseSubject(c.SectorHost(), localSubject, salt)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Clone returns a deep copy, so callers never share slices with a store.
func (c *Client) Clone() *Client {
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.PostLogoutRedirectURIs = append([]string(nil), c.PostLogoutRedirectURIs...)
	cp.ClaimsRedirectURIs = append([]string(nil), c.ClaimsRedirectURIs...)
	cp.ResponseTypes = append([]string(nil), c.ResponseTypes...)
	cp.GrantTypes = append([]string(nil), c.GrantTypes...)
	cp.Contacts = append([]string(nil), c.Contacts...)
	cp.BackchannelLogoutURIs = append(StringList(nil), c.BackchannelLogoutURIs...)
	cp.JWKS = append(json.RawMessage(nil), c.JWKS...)
	if c.CustomAttributes != nil {
		cp.CustomAttributes = make(map[string]string, len(c.CustomAttributes))
		for k, v := range c.CustomAttributes {
			cp.CustomAttributes[k] = v
		}
	}
	return &cp
}

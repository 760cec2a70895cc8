package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	authCodeTimeoutKey         = "auth_code_timeout"
	accessTokenExpiryKey       = "access_token_expiry"
	idTokenExpiryKey           = "id_token_expiry"
	refreshTokenExpiryKey      = "refresh_token_expiry"
	sessionTTLKey              = "session_ttl"
	backchannelTimeoutKey      = "backchannel_logout_timeout"
	sectorIdentifierTimeoutKey = "sector_identifier_timeout"
	forceIDTokenHintKey        = "force_id_token_hint"
	signingAlgorithmsKey       = "signing_algorithms"
	defaultIDTokenAlgKey       = "default_id_token_alg"
	pairwiseSaltKey            = "pairwise_salt"
	updatePolicyKey            = "registration_update_policy"
	endSessionErrorModeKey     = "end_session_error_mode"
	customAuthParamsKey        = "custom_auth_params"
)

type OAuthConfig interface {
	GetAuthCodeTimeout() time.Duration
	GetAccessTokenExpiry() time.Duration
	GetIDTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetSessionTTL() time.Duration
	GetBackchannelLogoutTimeout() time.Duration
	GetSectorIdentifierTimeout() time.Duration
	GetForceIDTokenHint() bool
	GetSigningAlgorithms() []string
	GetDefaultIDTokenAlg() string
	GetPairwiseSalt() string
	GetRegistrationUpdatePolicy() string
	GetEndSessionErrorMode() string
	GetCustomAuthParams() []string
}

type OAuth struct {
	v *viper.Viper
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetAuthCodeTimeout() time.Duration {
	return o.v.GetDuration(authCodeTimeoutKey)
}

func (o OAuth) GetAccessTokenExpiry() time.Duration {
	return o.v.GetDuration(accessTokenExpiryKey)
}

func (o OAuth) GetIDTokenExpiry() time.Duration {
	return o.v.GetDuration(idTokenExpiryKey)
}

func (o OAuth) GetRefreshTokenExpiry() time.Duration {
	return o.v.GetDuration(refreshTokenExpiryKey)
}

func (o OAuth) GetSessionTTL() time.Duration {
	return o.v.GetDuration(sessionTTLKey)
}

// GetBackchannelLogoutTimeout bounds each back-channel logout POST.
func (o OAuth) GetBackchannelLogoutTimeout() time.Duration {
	return o.v.GetDuration(backchannelTimeoutKey)
}

func (o OAuth) GetSectorIdentifierTimeout() time.Duration {
	return o.v.GetDuration(sectorIdentifierTimeoutKey)
}

func (o OAuth) GetForceIDTokenHint() bool {
	return o.v.GetBool(forceIDTokenHintKey)
}

// GetSigningAlgorithms lists the algorithms the keystore is provisioned for.
func (o OAuth) GetSigningAlgorithms() []string {
	return splitList(o.v.GetString(signingAlgorithmsKey))
}

func (o OAuth) GetDefaultIDTokenAlg() string {
	return o.v.GetString(defaultIDTokenAlgKey)
}

func (o OAuth) GetPairwiseSalt() string {
	return o.v.GetString(pairwiseSaltKey)
}

// GetRegistrationUpdatePolicy is "retain" or "reset".
func (o OAuth) GetRegistrationUpdatePolicy() string {
	return o.v.GetString(updatePolicyKey)
}

// GetEndSessionErrorMode is "json" or "redirect".
func (o OAuth) GetEndSessionErrorMode() string {
	return o.v.GetString(endSessionErrorModeKey)
}

// GetCustomAuthParams names the request parameters matched against user attributes
// by the custom authenticator, e.g. "uid,pwd" or "mail,inum".
func (o OAuth) GetCustomAuthParams() []string {
	return splitList(o.v.GetString(customAuthParamsKey))
}

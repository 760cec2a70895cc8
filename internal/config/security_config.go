package config

import "github.com/spf13/viper"

const (
	requirePKCEKey        = "require_pkce"
	enableRateLimitingKey = "enable_rate_limiting"
	rateLimitRPSKey       = "rate_limit_rps"
	rateLimitBurstKey     = "rate_limit_burst"
	adminUserKey          = "admin_user"
	adminPasswordKey      = "admin_password"
	trustedProxiesKey     = "trusted_proxies"
)

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetEnableRateLimiting() bool
	GetRateLimitRPS() float64
	GetRateLimitBurst() int
	GetAdminUser() string
	GetAdminPassword() string
	GetTrustedProxies() []string
}

type Security struct {
	v *viper.Viper
}

var _ SecurityConfig = Security{}

// GetRequirePKCE forces PKCE for confidential clients too. Public clients always need it.
func (s Security) GetRequirePKCE() bool {
	return s.v.GetBool(requirePKCEKey)
}

func (s Security) GetEnableRateLimiting() bool {
	return s.v.GetBool(enableRateLimitingKey)
}

func (s Security) GetRateLimitRPS() float64 {
	return s.v.GetFloat64(rateLimitRPSKey)
}

func (s Security) GetRateLimitBurst() int {
	return s.v.GetInt(rateLimitBurstKey)
}

// GetAdminUser is the username seeded on first start when it does not exist yet.
func (s Security) GetAdminUser() string {
	return s.v.GetString(adminUserKey)
}

// GetAdminPassword is the seeded user's password. Empty means one is generated and logged once.
func (s Security) GetAdminPassword() string {
	return s.v.GetString(adminPasswordKey)
}

// GetTrustedProxies lists the IPs or CIDRs of reverse proxies whose
// X-Forwarded-For header is believed. Empty means the connection address is used.
func (s Security) GetTrustedProxies() []string {
	return splitList(s.v.GetString(trustedProxiesKey))
}

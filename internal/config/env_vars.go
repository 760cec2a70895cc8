package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	portKey         = "port"
	appNameKey      = "app_name"
	envKey          = "env"
	issuerKey       = "issuer"
	logLevelKey     = "log_level"
	loginPageURLKey = "login_page_url"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.v.GetString(portKey)
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(appNameKey)
}

func (e EnvVars) GetEnv() string {
	return strings.ToUpper(e.v.GetString(envKey))
}

// GetIssuer returns the issuer identifier, which is also the base URL of every endpoint.
func (e EnvVars) GetIssuer() string {
	return strings.TrimSuffix(e.v.GetString(issuerKey), "/")
}

func (e EnvVars) GetLogLevel() string {
	return e.v.GetString(logLevelKey)
}

func (e EnvVars) GetLoginPageURL() string {
	return e.v.GetString(loginPageURLKey)
}

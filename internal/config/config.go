package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetIssuer() string
	GetLogLevel() string
	GetLoginPageURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
	Storage
}

// New wraps an already populated viper instance. Defaults are applied to v.
func New(v *viper.Viper) Config {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	return mainConfig{
		EnvVars:  EnvVars{v: v},
		Cors:     Cors{v: v},
		OAuth:    OAuth{v: v},
		Security: Security{v: v},
		Storage:  Storage{v: v},
	}
}

// Load reads an optional .env file, the environment and an optional config file into v.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "[config.Load] reading %s", configFile)
		}
	}
	return New(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(portKey, "8080")
	v.SetDefault(appNameKey, "Go OIDC Server")
	v.SetDefault(envKey, "DEV")
	v.SetDefault(issuerKey, "http://localhost:8080")
	v.SetDefault(logLevelKey, "info")
	v.SetDefault(loginPageURLKey, "/login")

	v.SetDefault(allowedOriginsKey, "")

	v.SetDefault(authCodeTimeoutKey, 15*time.Minute)
	v.SetDefault(accessTokenExpiryKey, time.Hour)
	v.SetDefault(idTokenExpiryKey, time.Hour)
	v.SetDefault(refreshTokenExpiryKey, 7*24*time.Hour)
	v.SetDefault(sessionTTLKey, 24*time.Hour)
	v.SetDefault(backchannelTimeoutKey, 5*time.Second)
	v.SetDefault(sectorIdentifierTimeoutKey, 10*time.Second)
	v.SetDefault(forceIDTokenHintKey, false)
	v.SetDefault(signingAlgorithmsKey, "HS256,HS384,HS512,RS256,RS384,RS512,ES256,ES384,ES512")
	v.SetDefault(defaultIDTokenAlgKey, "RS256")
	v.SetDefault(pairwiseSaltKey, "")
	v.SetDefault(updatePolicyKey, "retain")
	v.SetDefault(endSessionErrorModeKey, "json")
	v.SetDefault(customAuthParamsKey, "")

	v.SetDefault(requirePKCEKey, false)
	v.SetDefault(enableRateLimitingKey, false)
	v.SetDefault(rateLimitRPSKey, 10.0)
	v.SetDefault(rateLimitBurstKey, 20)
	v.SetDefault(adminUserKey, "admin")
	v.SetDefault(adminPasswordKey, "")
	v.SetDefault(trustedProxiesKey, "")

	v.SetDefault(storageBackendKey, "memory")
	v.SetDefault(redisURLKey, "redis://localhost:6379/0")
	v.SetDefault(clientStoreKey, "memory")
	v.SetDefault(boltPathKey, "./data/clients.db")
}

// splitList splits a comma separated value, trimming blanks.
func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

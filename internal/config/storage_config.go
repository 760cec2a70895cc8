package config

import "github.com/spf13/viper"

const (
	storageBackendKey = "storage_backend"
	redisURLKey       = "redis_url"
	clientStoreKey    = "client_store"
	boltPathKey       = "bolt_path"
)

type StorageConfig interface {
	GetStorageBackend() string
	GetRedisURL() string
	GetClientStore() string
	GetBoltPath() string
}

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

// GetStorageBackend selects where tokens, sessions and codes live: "memory" or "redis".
func (s Storage) GetStorageBackend() string {
	return s.v.GetString(storageBackendKey)
}

func (s Storage) GetRedisURL() string {
	return s.v.GetString(redisURLKey)
}

// GetClientStore selects where registered clients live: "memory" or "bolt".
func (s Storage) GetClientStore() string {
	return s.v.GetString(clientStoreKey)
}

func (s Storage) GetBoltPath() string {
	return s.v.GetString(boltPathKey)
}

package appconfig

import (
	"path/filepath"

	"github.com/vulpemventures/cosigner/internal/config"
	postgresdb "github.com/vulpemventures/cosigner/internal/infrastructure/storage/db/postgres"
)

// FromEnv returns an AppConfig populated from the COSIGNER_* environment
// variables. The returned config still needs to be validated.
func FromEnv() *AppConfig {
	return &AppConfig{
		GatewayURL:        config.GetString(config.GatewayUrlKey),
		GatewayTimeout:    config.GetDuration(config.GatewayTimeoutKey),
		DirectoryCacheTTL: config.GetDuration(config.DirectoryCacheTTLKey),
		RepoManagerType:   config.GetString(config.DatabaseTypeKey),
		LockType:          config.GetString(config.LockTypeKey),
		NotifierType:      config.GetString(config.NotifierTypeKey),
		RepoManagerConfig: repoManagerConfigFromEnv(),
		LockConfig:        lockConfigFromEnv(),
		NotifierConfig:    notifierConfigFromEnv(),
	}
}

func repoManagerConfigFromEnv() interface{} {
	switch config.GetString(config.DatabaseTypeKey) {
	case "postgres":
		return postgresdb.DbConfig{
			DbUser:             config.GetString(config.DbUserKey),
			DbPassword:         config.GetString(config.DbPassKey),
			DbHost:             config.GetString(config.DbHostKey),
			DbPort:             config.GetInt(config.DbPortKey),
			DbName:             config.GetString(config.DbNameKey),
			MigrationSourceURL: config.GetString(config.DbMigrationPath),
		}
	case "badger":
		return filepath.Join(config.GetDatadir(), config.DbLocation)
	default:
		return nil
	}
}

func lockConfigFromEnv() interface{} {
	if config.GetString(config.LockTypeKey) != "redis" {
		return nil
	}
	return RedisConfig{
		Addr:     config.GetString(config.RedisAddrKey),
		Password: config.GetString(config.RedisPasswordKey),
		Db:       config.GetInt(config.RedisDbKey),
		TTL:      config.GetDuration(config.LockTTLKey),
	}
}

func notifierConfigFromEnv() interface{} {
	if config.GetString(config.NotifierTypeKey) != "kafka" {
		return nil
	}
	return KafkaConfig{
		Brokers: config.GetStringSlice(config.KafkaBrokersKey),
		Topic:   config.GetString(config.KafkaNotificationTopicKey),
	}
}

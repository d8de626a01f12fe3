package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the key to customize the cosigner datadir.
	DatadirKey = "DATADIR"
	// DatabaseTypeKey is the key to customize the type of database to use.
	DatabaseTypeKey = "DATABASE_TYPE"
	// LockTypeKey is the key to customize the type of locker guarding
	// submissions.
	LockTypeKey = "LOCK_TYPE"
	// NotifierTypeKey is the key to customize the type of notifier to use.
	NotifierTypeKey = "NOTIFIER_TYPE"
	// PortKey is the key to customize the port where the grpc health service
	// will be listening to.
	PortKey = "PORT"
	// ProfilerPortKey is the key to customize the port where the profiler will
	// be listening to.
	ProfilerPortKey = "PROFILER_PORT"
	// LogLevelKey is the key to customize the log level to catch more specific
	// or more high level logs.
	LogLevelKey = "LOG_LEVEL"
	// NoTLSKey is the key to disable TLS encryption.
	NoTLSKey = "NO_TLS"
	// NoProfilerKey is the key to disable Prometheus profiling.
	NoProfilerKey = "NO_PROFILER"
	// StatsIntervalKey is the key to customize the interval for the profiler to
	// gather profiling stats.
	StatsIntervalKey = "STATS_INTERVAL"
	// GatewayUrlKey is the websocket endpoint of the ledger gateway.
	GatewayUrlKey = "GATEWAY_URL"
	// GatewayTimeoutKey is the key to customize how long to wait for a
	// response of the ledger gateway.
	GatewayTimeoutKey = "GATEWAY_TIMEOUT_IN_SECONDS"
	// DirectoryCacheTTLKey is the key to customize for how long resolved
	// account and node keys are cached.
	DirectoryCacheTTLKey = "DIRECTORY_CACHE_TTL_IN_SECONDS"
	// RedisAddrKey is the address of the redis instance used by the redis
	// locker.
	RedisAddrKey = "REDIS_ADDR"
	// RedisPasswordKey is the password of the redis instance.
	RedisPasswordKey = "REDIS_PASSWORD"
	// RedisDbKey is the redis logical db.
	RedisDbKey = "REDIS_DB"
	// LockTTLKey is the key to customize the expiration of a lock held by a
	// crashed instance.
	LockTTLKey = "LOCK_TTL_IN_SECONDS"
	// KafkaBrokersKey is the comma separated list of kafka brokers.
	KafkaBrokersKey = "KAFKA_BROKERS"
	// KafkaNotificationTopicKey is the topic where notifications are published.
	KafkaNotificationTopicKey = "KAFKA_NOTIFICATION_TOPIC"
	// KafkaSignatureTopicKey is the topic where intake publishes new
	// signatures. The consumer is disabled if empty.
	KafkaSignatureTopicKey = "KAFKA_SIGNATURE_TOPIC"
	// KafkaConsumerGroupKey is the consumer group of the signature consumer.
	KafkaConsumerGroupKey = "KAFKA_CONSUMER_GROUP"

	// DbLocation is the folder inside the datadir containing db files.
	DbLocation = "db"
	// TLSLocation is the folder inside the datadir containing TLS key and
	// certificate.
	TLSLocation = "tls"
	// ProfilerLocation is the folder inside the datadir containing profiler
	// stats files.
	ProfilerLocation = "stats"
	// DbUserKey is user used to connect to db
	DbUserKey = "DB_USER"
	// DbPassKey is password used to connect to db
	DbPassKey = "DB_PASS"
	// DbHostKey is host where db is installed
	DbHostKey = "DB_HOST"
	// DbPortKey is port on which db is listening
	DbPortKey = "DB_PORT"
	// DbNameKey is name of database
	DbNameKey = "DB_NAME"
	// DbMigrationPath is the path to migration files
	DbMigrationPath = "DB_MIGRATION_PATH"
)

var (
	vip *viper.Viper

	defaultDatadir           = btcutil.AppDataDir("cosignerd", false)
	defaultDbType            = "badger"
	defaultLockType          = "inmemory"
	defaultNotifierType      = "log"
	defaultPort              = 18100
	defaultLogLevel          = 4
	defaultProfilerPort      = 18101
	defaultStatsInterval     = 600 // 10 minutes
	defaultGatewayURL        = "ws://127.0.0.1:18200"
	defaultGatewayTimeout    = 15
	defaultDirectoryCacheTTL = 60
	defaultLockTTL           = 30
	defaultConsumerGroup     = "cosignerd"

	SupportedDbs = supportedType{
		"badger":   {},
		"inmemory": {},
		"postgres": {},
	}
	SupportedLocks = supportedType{
		"inmemory": {},
		"redis":    {},
	}
	SupportedNotifiers = supportedType{
		"log":   {},
		"kafka": {},
	}
)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("COSIGNER")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(DatabaseTypeKey, defaultDbType)
	vip.SetDefault(LockTypeKey, defaultLockType)
	vip.SetDefault(NotifierTypeKey, defaultNotifierType)
	vip.SetDefault(PortKey, defaultPort)
	vip.SetDefault(LogLevelKey, defaultLogLevel)
	vip.SetDefault(NoTLSKey, false)
	vip.SetDefault(NoProfilerKey, false)
	vip.SetDefault(ProfilerPortKey, defaultProfilerPort)
	vip.SetDefault(StatsIntervalKey, defaultStatsInterval)
	vip.SetDefault(GatewayUrlKey, defaultGatewayURL)
	vip.SetDefault(GatewayTimeoutKey, defaultGatewayTimeout)
	vip.SetDefault(DirectoryCacheTTLKey, defaultDirectoryCacheTTL)
	vip.SetDefault(RedisAddrKey, "127.0.0.1:6379")
	vip.SetDefault(RedisDbKey, 0)
	vip.SetDefault(LockTTLKey, defaultLockTTL)
	vip.SetDefault(KafkaNotificationTopicKey, "cosigner.notifications")
	vip.SetDefault(KafkaConsumerGroupKey, defaultConsumerGroup)
	vip.SetDefault(DbUserKey, "root")
	vip.SetDefault(DbPassKey, "secret")
	vip.SetDefault(DbHostKey, "127.0.0.1")
	vip.SetDefault(DbPortKey, 5432)
	vip.SetDefault(DbNameKey, "cosigner-db-pg")
	vip.SetDefault(DbMigrationPath, "file://internal/infrastructure/storage/db/postgres/migration")

	if err := validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}

	if err := initDatadir(); err != nil {
		log.Fatalf("config: error while creating datadir: %s", err)
	}
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	dbType := GetString(DatabaseTypeKey)
	if _, ok := SupportedDbs[dbType]; !ok {
		return fmt.Errorf("unsupported database type, must be one of %s", SupportedDbs)
	}

	lockType := GetString(LockTypeKey)
	if _, ok := SupportedLocks[lockType]; !ok {
		return fmt.Errorf("unsupported lock type, must be one of %s", SupportedLocks)
	}
	if lockType == "redis" && len(GetString(RedisAddrKey)) <= 0 {
		return fmt.Errorf("redis address must not be null")
	}

	notifierType := GetString(NotifierTypeKey)
	if _, ok := SupportedNotifiers[notifierType]; !ok {
		return fmt.Errorf(
			"unsupported notifier type, must be one of %s", SupportedNotifiers,
		)
	}
	if notifierType == "kafka" || len(GetString(KafkaSignatureTopicKey)) > 0 {
		if len(GetStringSlice(KafkaBrokersKey)) == 0 {
			return fmt.Errorf("kafka brokers list must not be empty")
		}
	}

	if GetInt(GatewayTimeoutKey) <= 0 {
		return fmt.Errorf("gateway timeout must be a positive number of seconds")
	}
	if GetInt(DirectoryCacheTTLKey) <= 0 {
		return fmt.Errorf("directory cache ttl must be a positive number of seconds")
	}
	if GetInt(LockTTLKey) <= 0 {
		return fmt.Errorf("lock ttl must be a positive number of seconds")
	}

	port := GetInt(PortKey)
	noProfiler := GetBool(NoProfilerKey)
	if !noProfiler {
		profilerPort := GetInt(ProfilerPortKey)
		if port == profilerPort {
			return fmt.Errorf("port and profiler port must not be equal")
		}
	}

	return nil
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetDuration(key string) time.Duration {
	return time.Duration(GetInt(key)) * time.Second
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetStringSlice accepts both comma and space separated values.
func GetStringSlice(key string) []string {
	list := make([]string, 0)
	for _, v := range vip.GetStringSlice(key) {
		for _, vv := range strings.Split(v, ",") {
			if vv = strings.TrimSpace(vv); vv != "" {
				list = append(list, vv)
			}
		}
	}
	return list
}

func Set(key string, val interface{}) {
	vip.Set(key, val)
}

func Unset(key string) {
	vip.Set(key, nil)
}

func IsSet(key string) bool {
	return vip.IsSet(key)
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
		return err
	}

	noProfiler := GetBool(NoProfilerKey)
	if !noProfiler {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation)); err != nil {
			return err
		}
	}

	noTls := GetBool(NoTLSKey)
	if noTls {
		return nil
	}
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, TLSLocation)); err != nil {
		return err
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

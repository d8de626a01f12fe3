package appconfig

import (
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/config"
	"github.com/vulpemventures/cosigner/internal/core/application"
	"github.com/vulpemventures/cosigner/internal/core/ports"
	cached_directory "github.com/vulpemventures/cosigner/internal/infrastructure/account-directory/cached"
	ws_gateway "github.com/vulpemventures/cosigner/internal/infrastructure/ledger-gateway/ws"
	inmemory_lock "github.com/vulpemventures/cosigner/internal/infrastructure/lock/inmemory"
	redis_lock "github.com/vulpemventures/cosigner/internal/infrastructure/lock/redis"
	kafka_notifier "github.com/vulpemventures/cosigner/internal/infrastructure/notifier/kafka"
	log_notifier "github.com/vulpemventures/cosigner/internal/infrastructure/notifier/log"
	inmemory_scheduler "github.com/vulpemventures/cosigner/internal/infrastructure/scheduler/inmemory"
	dbbadger "github.com/vulpemventures/cosigner/internal/infrastructure/storage/db/badger"
	"github.com/vulpemventures/cosigner/internal/infrastructure/storage/db/inmemory"
	postgresdb "github.com/vulpemventures/cosigner/internal/infrastructure/storage/db/postgres"
)

// RedisConfig holds the connection args of the redis locker.
type RedisConfig struct {
	Addr     string
	Password string
	Db       int
	TTL      time.Duration
}

// KafkaConfig holds the args of the kafka notifier.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AppConfig is the struct holding all configuration options for every
// application service (status, execution, submission and signature).
// This data structure acts also as a factory of the mentioned application
// services and the portable services used by them.
// Public config args:
//   - GatewayURL - (required) The websocket endpoint of the ledger gateway.
//   - GatewayTimeout - (optional) How long to wait for a gateway response.
//   - DirectoryCacheTTL - (optional) For how long resolved keys are cached.
//   - RepoManagerType - (required) One of the supported repository manager types.
//   - LockType - (required) One of the supported locker types.
//   - NotifierType - (required) One of the supported notifier types.
//   - RepoManagerConfig - (optional) Custom config args for the repository manager based on its type.
//   - LockConfig - (optional) Custom config args for the locker based on its type.
//   - NotifierConfig - (optional) Custom config args for the notifier based on its type.
//   - Clock - (optional) The clock driving timers and cron jobs, real by default.
type AppConfig struct {
	GatewayURL        string
	GatewayTimeout    time.Duration
	DirectoryCacheTTL time.Duration

	RepoManagerType   string
	LockType          string
	NotifierType      string
	RepoManagerConfig interface{}
	LockConfig        interface{}
	NotifierConfig    interface{}

	Clock clock.Clock

	rm           ports.RepoManager
	ledgerClient ports.LedgerClient
	directory    ports.AccountDirectory
	locker       ports.Locker
	notifier     ports.Notifier
	scheduler    ports.Scheduler

	signatureSvc  *application.SignatureService
	submissionSvc *application.SubmissionService
	executionSvc  *application.ExecutionService
	statusSvc     *application.StatusService
}

func (c *AppConfig) Validate() error {
	if len(c.GatewayURL) == 0 {
		return fmt.Errorf("missing ledger gateway url")
	}
	if len(c.RepoManagerType) == 0 {
		return fmt.Errorf("missing repo manager type")
	}
	if _, ok := config.SupportedDbs[c.RepoManagerType]; !ok {
		return fmt.Errorf(
			"repo manager type not supported, must be one of: %s",
			config.SupportedDbs,
		)
	}
	if len(c.LockType) == 0 {
		return fmt.Errorf("missing lock type")
	}
	if _, ok := config.SupportedLocks[c.LockType]; !ok {
		return fmt.Errorf(
			"lock type not supported, must be one of: %s", config.SupportedLocks,
		)
	}
	if len(c.NotifierType) == 0 {
		return fmt.Errorf("missing notifier type")
	}
	if _, ok := config.SupportedNotifiers[c.NotifierType]; !ok {
		return fmt.Errorf(
			"notifier type not supported, must be one of: %s",
			config.SupportedNotifiers,
		)
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}

	if _, err := c.repoManager(); err != nil {
		return err
	}
	if _, err := c.ledgerGateway(); err != nil {
		return err
	}
	if _, err := c.accountDirectory(); err != nil {
		return err
	}
	if _, err := c.lock(); err != nil {
		return err
	}
	if _, err := c.notificationBus(); err != nil {
		return err
	}
	if _, err := c.statusService(); err != nil {
		return err
	}
	return nil
}

func (c *AppConfig) RepoManager() ports.RepoManager {
	return c.rm
}

func (c *AppConfig) LedgerClient() ports.LedgerClient {
	return c.ledgerClient
}

func (c *AppConfig) Scheduler() ports.Scheduler {
	return c.timers()
}

func (c *AppConfig) SignatureService() *application.SignatureService {
	return c.signatureService()
}

func (c *AppConfig) SubmissionService() *application.SubmissionService {
	return c.submissionService()
}

func (c *AppConfig) ExecutionService() *application.ExecutionService {
	return c.executionService()
}

func (c *AppConfig) StatusService() *application.StatusService {
	svc, _ := c.statusService()
	return svc
}

// Close releases every adapter in the reverse order of dependency.
func (c *AppConfig) Close() {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if closer, ok := c.notifier.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Warn("app config: failed to close notifier")
		}
	}
	if closer, ok := c.locker.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Warn("app config: failed to close locker")
		}
	}
	if c.ledgerClient != nil {
		c.ledgerClient.Close()
	}
	if c.rm != nil {
		c.rm.Close()
	}
}

func (c *AppConfig) repoManager() (ports.RepoManager, error) {
	if c.rm != nil {
		return c.rm, nil
	}

	switch c.RepoManagerType {
	case "inmemory":
		c.rm = inmemory.NewRepoManager()
		return c.rm, nil
	case "badger":
		if c.RepoManagerConfig == nil {
			return nil, fmt.Errorf("missing repo manager config args")
		}
		datadir, ok := c.RepoManagerConfig.(string)
		if !ok {
			return nil, fmt.Errorf("invalid repo manager config type, must be string")
		}
		rm, err := dbbadger.NewRepoManager(datadir, log.New())
		if err != nil {
			return nil, err
		}
		c.rm = rm
		return c.rm, nil
	case "postgres":
		dbConfig, ok := c.RepoManagerConfig.(postgresdb.DbConfig)
		if !ok {
			return nil, fmt.Errorf("invalid repo manager config type, must be postgresdb.DbConfig")
		}

		rm, err := postgresdb.NewRepoManager(dbConfig)
		if err != nil {
			return nil, err
		}

		c.rm = rm
		return c.rm, nil
	default:
		return nil, fmt.Errorf("unknown repo manager type")
	}
}

func (c *AppConfig) ledgerGateway() (ports.LedgerClient, error) {
	if c.ledgerClient != nil {
		return c.ledgerClient, nil
	}

	client, err := ws_gateway.NewClient(c.GatewayURL, c.GatewayTimeout)
	if err != nil {
		return nil, err
	}
	c.ledgerClient = client
	return c.ledgerClient, nil
}

func (c *AppConfig) accountDirectory() (ports.AccountDirectory, error) {
	if c.directory != nil {
		return c.directory, nil
	}

	client, err := c.ledgerGateway()
	if err != nil {
		return nil, err
	}
	ttl := c.DirectoryCacheTTL
	if ttl <= 0 {
		ttl = cached_directory.DefaultTTL
	}
	directory, err := cached_directory.NewAccountDirectory(client, ttl)
	if err != nil {
		return nil, err
	}
	c.directory = directory
	return c.directory, nil
}

func (c *AppConfig) lock() (ports.Locker, error) {
	if c.locker != nil {
		return c.locker, nil
	}

	switch c.LockType {
	case "inmemory":
		c.locker = inmemory_lock.NewLocker()
		return c.locker, nil
	case "redis":
		args, ok := c.LockConfig.(RedisConfig)
		if !ok {
			return nil, fmt.Errorf("invalid lock config type, must be RedisConfig")
		}
		if len(args.Addr) == 0 {
			return nil, fmt.Errorf("missing redis address")
		}
		ttl := args.TTL
		if ttl <= 0 {
			ttl = redis_lock.DefaultTTL
		}
		c.locker = redis_lock.NewLocker(args.Addr, args.Password, args.Db, ttl)
		return c.locker, nil
	default:
		return nil, fmt.Errorf("unknown lock type")
	}
}

func (c *AppConfig) notificationBus() (ports.Notifier, error) {
	if c.notifier != nil {
		return c.notifier, nil
	}

	switch c.NotifierType {
	case "log":
		c.notifier = log_notifier.NewNotifier()
		return c.notifier, nil
	case "kafka":
		args, ok := c.NotifierConfig.(KafkaConfig)
		if !ok {
			return nil, fmt.Errorf("invalid notifier config type, must be KafkaConfig")
		}
		notifier, err := kafka_notifier.NewNotifier(args.Brokers, args.Topic)
		if err != nil {
			return nil, err
		}
		c.notifier = notifier
		return c.notifier, nil
	default:
		return nil, fmt.Errorf("unknown notifier type")
	}
}

func (c *AppConfig) timers() ports.Scheduler {
	if c.scheduler != nil {
		return c.scheduler
	}
	c.scheduler = inmemory_scheduler.NewScheduler(c.Clock)
	return c.scheduler
}

func (c *AppConfig) signatureService() *application.SignatureService {
	if c.signatureSvc != nil {
		return c.signatureSvc
	}

	directory, _ := c.accountDirectory()
	c.signatureSvc = application.NewSignatureService(directory)
	return c.signatureSvc
}

func (c *AppConfig) submissionService() *application.SubmissionService {
	if c.submissionSvc != nil {
		return c.submissionSvc
	}

	rm, _ := c.repoManager()
	client, _ := c.ledgerGateway()
	directory, _ := c.accountDirectory()
	locker, _ := c.lock()
	notifier, _ := c.notificationBus()
	c.submissionSvc = application.NewSubmissionService(
		rm, c.signatureService(), client, directory, locker, notifier, c.Clock,
	)
	return c.submissionSvc
}

func (c *AppConfig) executionService() *application.ExecutionService {
	if c.executionSvc != nil {
		return c.executionSvc
	}

	rm, _ := c.repoManager()
	notifier, _ := c.notificationBus()
	c.executionSvc = application.NewExecutionService(
		rm, c.signatureService(), c.submissionService(), c.timers(), notifier,
		c.Clock,
	)
	return c.executionSvc
}

func (c *AppConfig) statusService() (*application.StatusService, error) {
	if c.statusSvc != nil {
		return c.statusSvc, nil
	}

	rm, _ := c.repoManager()
	notifier, _ := c.notificationBus()
	svc, err := application.NewStatusService(
		rm, c.signatureService(), c.executionService(), notifier, c.Clock,
	)
	if err != nil {
		return nil, err
	}
	c.statusSvc = svc
	return c.statusSvc, nil
}

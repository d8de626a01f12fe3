package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	appconfig "github.com/vulpemventures/cosigner/internal/app-config"
	"github.com/vulpemventures/cosigner/internal/config"
	"github.com/vulpemventures/cosigner/internal/interfaces"
	grpc_interface "github.com/vulpemventures/cosigner/internal/interfaces/grpc"
	kafka_interface "github.com/vulpemventures/cosigner/internal/interfaces/kafka"
	"github.com/vulpemventures/cosigner/internal/metrics"
	"github.com/vulpemventures/cosigner/pkg/profiler"
)

var (
	// Build info.
	version string
	commit  string
	date    string

	// Config from env vars.
	logLevel       = config.GetInt(config.LogLevelKey)
	datadir        = config.GetDatadir()
	port           = config.GetInt(config.PortKey)
	profilerPort   = config.GetInt(config.ProfilerPortKey)
	noTLS          = config.GetBool(config.NoTLSKey)
	noProfiler     = config.GetBool(config.NoProfilerKey)
	tlsDir         = filepath.Join(datadir, config.TLSLocation)
	profilerDir    = filepath.Join(datadir, config.ProfilerLocation)
	statsInterval  = config.GetDuration(config.StatsIntervalKey)
	kafkaBrokers   = config.GetStringSlice(config.KafkaBrokersKey)
	signatureTopic = config.GetString(config.KafkaSignatureTopicKey)
	consumerGroup  = config.GetString(config.KafkaConsumerGroupKey)
)

func main() {
	log.SetLevel(log.Level(logLevel))
	log.Infof("cosignerd version %s, commit %s, built at %s", version, commit, date)

	if err := metrics.Register(); err != nil {
		log.WithError(err).Fatal("metrics: error while registering collectors")
	}

	if profilerEnabled := !noProfiler; profilerEnabled {
		profilerSvc, err := profiler.NewService(profiler.ServiceOpts{
			Port:          profilerPort,
			StatsInterval: statsInterval,
			Datadir:       profilerDir,
		})
		if err != nil {
			log.WithError(err).Fatal("profiler: error while starting")
		}

		profilerSvc.Start()
		defer func() {
			profilerSvc.Stop()
		}()
	}

	serviceCfg := grpc_interface.ServiceConfig{
		Port:        port,
		NoTLS:       noTLS,
		TLSLocation: tlsDir,
	}
	appCfg := appconfig.FromEnv()

	var consumerCfg *kafka_interface.ConsumerConfig
	if len(signatureTopic) > 0 {
		consumerCfg = &kafka_interface.ConsumerConfig{
			Brokers: kafkaBrokers,
			Topic:   signatureTopic,
			GroupID: consumerGroup,
		}
	}

	serviceManager, err := interfaces.NewGrpcServiceManager(
		serviceCfg, appCfg, consumerCfg,
	)
	if err != nil {
		log.WithError(err).Fatal("service: error while initializing")
	}
	if err := serviceManager.Start(); err != nil {
		log.WithError(err).Fatal("service: error while starting")
	}
	defer serviceManager.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down")
}

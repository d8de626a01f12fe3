package grpc_interface

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	appconfig "github.com/vulpemventures/cosigner/internal/app-config"
	grpc_interceptor "github.com/vulpemventures/cosigner/internal/interfaces/grpc/interceptor"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name health checks are run against.
const ServiceName = "cosigner"

type service struct {
	config     ServiceConfig
	appConfig  *appconfig.AppConfig
	grpcServer *grpc.Server
	health     *health.Server

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewService(config ServiceConfig, appConfig *appconfig.AppConfig) (*service, error) {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("service: %s", format)
		log.Infof(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}

	return &service{
		config, appConfig, nil, health.NewServer(), logFn, warnFn,
	}, nil
}

func (s *service) Start() error {
	s.appConfig.StatusService().Start()
	s.log("started status service")

	srv, err := s.start()
	if err != nil {
		s.appConfig.StatusService().Stop()
		return err
	}

	s.log("start listening on %s", s.config.address())

	s.grpcServer = srv
	return nil
}

func (s *service) Stop() {
	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
		s.log("stopped grpc server")
	}

	s.appConfig.StatusService().Stop()
	s.log("stopped status service")
	s.appConfig.Close()
	s.log("closed connection with db and adapters")
	s.log("shutdown")
}

func (s *service) start() (*grpc.Server, error) {
	lis, err := s.config.listener()
	if err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer(
		grpc_interceptor.UnaryInterceptor(), grpc_interceptor.StreamInterceptor(),
	)

	healthpb.RegisterHealthServer(grpcServer, s.health)
	reflection.Register(grpcServer)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.log("registered health handler on public interface")

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			s.warn(err, "grpc server stopped")
		}
	}()

	return grpcServer, nil
}

package interfaces

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	appconfig "github.com/vulpemventures/cosigner/internal/app-config"
	grpc_interface "github.com/vulpemventures/cosigner/internal/interfaces/grpc"
	kafka_interface "github.com/vulpemventures/cosigner/internal/interfaces/kafka"
)

// Service interface defines the methods that every kind of interface, whether
// gRPC, a message consumer, or whatever must be compliant with.
type Service interface {
	Start() error
	Stop()
}

// ServiceManager starts the given services in order and stops them in
// reverse order.
type ServiceManager struct {
	services []Service
}

func NewGrpcServiceManager(
	config grpc_interface.ServiceConfig, appConfig *appconfig.AppConfig,
	consumerConfig *kafka_interface.ConsumerConfig,
) (*ServiceManager, error) {
	svc, err := grpc_interface.NewService(config, appConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initalize grpc service: %s", err)
	}
	services := []Service{svc}

	if consumerConfig != nil {
		consumer, err := kafka_interface.NewConsumer(
			*consumerConfig, appConfig.StatusService(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize signature consumer: %s", err)
		}
		services = append(services, consumer)
	}

	return &ServiceManager{services}, nil
}

func (m *ServiceManager) Start() error {
	for i, svc := range m.services {
		if err := svc.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				m.services[j].Stop()
			}
			return err
		}
	}
	return nil
}

func (m *ServiceManager) Stop() {
	for i := len(m.services) - 1; i >= 0; i-- {
		m.services[i].Stop()
	}
	log.Debug("service manager: all services stopped")
}

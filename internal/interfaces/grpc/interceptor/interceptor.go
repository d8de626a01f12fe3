package interceptor

import (
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// UnaryInterceptor returns the middlewares applied to every unary rpc.
func UnaryInterceptor() grpc.ServerOption {
	entry := log.WithField("component", "grpc")
	return grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
		grpc_recovery.UnaryServerInterceptor(),
		grpc_logrus.UnaryServerInterceptor(entry, grpc_logrus.WithDecider(
			quietHealthChecks,
		)),
	))
}

// StreamInterceptor returns the middlewares applied to every stream rpc.
func StreamInterceptor() grpc.ServerOption {
	entry := log.WithField("component", "grpc")
	return grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
		grpc_recovery.StreamServerInterceptor(),
		grpc_logrus.StreamServerInterceptor(entry, grpc_logrus.WithDecider(
			quietHealthChecks,
		)),
	))
}

// quietHealthChecks drops the logs of successful health checks.
func quietHealthChecks(fullMethodName string, err error) bool {
	if err == nil && fullMethodName == "/grpc.health.v1.Health/Check" {
		return false
	}
	return true
}

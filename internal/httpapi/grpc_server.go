package httpapi

import (
	"context"
	"path"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"nrkgo.com/accounts/internal/obs"
)

// GRPCHealth serves grpc.health.v1 with a status that follows the readiness
// probe. The empty service name and "accounts" are both reported.
type GRPCHealth struct {
	srv       *health.Server
	readiness readinessChecker
}

// NewGRPCHealth starts in NOT_SERVING until the first Refresh.
func NewGRPCHealth(r readinessChecker) *GRPCHealth {
	if r == nil {
		r = ReadyProbe{}
	}
	h := &GRPCHealth{srv: health.NewServer(), readiness: r}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *GRPCHealth) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(serviceName, st)
}

// Refresh runs the readiness probe once and publishes the result.
func (h *GRPCHealth) Refresh(ctx context.Context) error {
	if err := h.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	obs.SetReady(true)
	h.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Run refreshes every interval until ctx ends, then marks every service as
// shutting down so watchers drain.
func (h *GRPCHealth) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		if err := h.Refresh(probeCtx); err != nil && ctx.Err() == nil {
			obs.Logger().Warn("readiness probe failed", zap.Error(err))
		}
		cancel()
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
		}
	}
}

// NewGRPCServer builds a server exposing health and reflection.
func NewGRPCServer(h *GRPCHealth, l *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if l == nil {
		l = obs.Logger()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingUnaryInterceptor(l)))
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.srv)
	reflection.Register(s)
	return s
}

// quietMethods are not logged on success.
var quietMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
}

func loggingUnaryInterceptor(l *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("service", path.Dir(info.FullMethod)[1:]),
			zap.String("method", path.Base(info.FullMethod)),
			zap.Duration("duration", time.Since(start)),
		}
		switch {
		case err != nil:
			l.Error("grpc call failed", append(fields, zap.Error(err))...)
		case !quietMethods[info.FullMethod]:
			l.Info("grpc call", fields...)
		}
		return resp, err
	}
}

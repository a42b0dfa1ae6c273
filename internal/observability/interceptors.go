// Package observability provides gRPC interceptors and the metrics HTTP server.
package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"interview-turn-service/internal/observability/metrics"
)

// Health and reflection traffic is frequent; it is counted but logged at debug.
var quietServices = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

// UnaryServerInterceptor returns a gRPC unary interceptor for metrics and logging.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(ctx, m, info.FullMethod, "unary", start, err)
		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC stream interceptor for metrics and logging.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		err := handler(srv, ss)
		observe(ss.Context(), m, info.FullMethod, "stream", start, err)
		return err
	}
}

func observe(ctx context.Context, m *metrics.Metrics, method, kind string, start time.Time, err error) {
	code := status.Code(err).String()
	m.RecordGRPCCall(method, code)

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	} else if isQuiet(method) {
		ev = log.Debug()
	}
	ev = ev.Str("method", method).
		Str("kind", kind).
		Str("code", code).
		Dur("duration", time.Since(start))
	withPeer(ctx, ev).Msg("gRPC call completed")
}

func withPeer(ctx context.Context, ev *zerolog.Event) *zerolog.Event {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return ev.Str("peer", p.Addr.String())
	}
	return ev
}

func isQuiet(method string) bool {
	for _, prefix := range quietServices {
		if strings.HasPrefix(method, prefix) {
			return true
		}
	}
	return false
}

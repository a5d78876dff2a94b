package interceptor

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mnehpets/rpcgate/jsonrpc"
)

// Outcome label values of rpcgate_rpc_requests_total.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// MethodUnknown is the method label of calls to unregistered methods.
const MethodUnknown = "unknown"

// rpcMetrics holds Prometheus metrics for dispatched calls.
type rpcMetrics struct {
	requests *prometheus.CounterVec   // By method and outcome
	duration *prometheus.HistogramVec // By method
}

func newRPCMetrics(reg prometheus.Registerer) (*rpcMetrics, error) {
	m := &rpcMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpcgate",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of dispatched JSON-RPC calls",
		}, []string{"method", "outcome"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rpcgate",
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "JSON-RPC call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	var err error
	m.requests, err = register(reg, m.requests)
	if err != nil {
		return nil, err
	}
	m.duration, err = register(reg, m.duration)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, reusing an identical collector that is already
// registered so several servers can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Metrics counts calls by method and outcome and observes their duration.
// Calls to unregistered methods share the MethodUnknown label.
func Metrics(reg prometheus.Registerer) (jsonrpc.Middleware, error) {
	m, err := newRPCMetrics(reg)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, req *jsonrpc.Request, next jsonrpc.Next) (*jsonrpc.Response, error) {
		method := req.Method
		if !jsonrpc.HasMethod(ctx, method) {
			method = MethodUnknown
		}

		start := time.Now()
		resp, err := next(ctx, req)
		m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())

		outcome := OutcomeOK
		if err != nil || resp == nil || resp.Error != nil {
			outcome = OutcomeError
		}
		m.requests.WithLabelValues(method, outcome).Inc()
		return resp, err
	}, nil
}

package interceptor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/mnehpets/rpcgate/auth"
	"github.com/mnehpets/rpcgate/jsonrpc"
)

func newServer(mw ...jsonrpc.Middleware) *jsonrpc.Server {
	s := jsonrpc.NewServer(jsonrpc.Config{Middleware: mw})
	s.AddMethod("echo", func(_ context.Context, params json.RawMessage) (any, error) {
		return params, nil
	})
	s.AddMethod("fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	s.AddMethod("panic", func(context.Context, json.RawMessage) (any, error) {
		panic("kaboom")
	})
	s.AddMethod("authenticate", func(context.Context, json.RawMessage) (any, error) {
		return true, nil
	})
	return s
}

func call(t *testing.T, s *jsonrpc.Server, ctx context.Context, method string) *jsonrpc.Response {
	t.Helper()
	req, err := jsonrpc.NewRequest(method, []int{1}, jsonrpc.NumberID(1))
	require.NoError(t, err)
	resp := s.Receive(ctx, req)
	require.NotNil(t, resp)
	return resp
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	s := newServer(Logging(zerolog.New(&buf)))

	call(t, s, context.Background(), "echo")
	call(t, s, context.Background(), "fail")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var ok, failed map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &ok))
	require.NoError(t, json.Unmarshal(lines[1], &failed))

	assert.Equal(t, "info", ok["level"])
	assert.Equal(t, "echo", ok["method"])
	assert.Equal(t, "1", ok["id"])
	assert.Contains(t, ok, "duration")
	assert.NotContains(t, ok, "code")

	assert.Equal(t, "warn", failed["level"])
	assert.Equal(t, float64(jsonrpc.CodeInternalError), failed["code"])
	assert.Equal(t, "boom", failed["error"])
}

func TestLogging_PrefersContextLogger(t *testing.T) {
	var fixed, scoped bytes.Buffer
	s := newServer(Logging(zerolog.New(&fixed)))

	reqLog := zerolog.New(&scoped).With().Str("request_id", "abc-123").Logger()
	call(t, s, reqLog.WithContext(context.Background()), "echo")

	assert.Empty(t, fixed.String())
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(scoped.Bytes()), &line))
	assert.Equal(t, "rpc", line["message"])
	assert.Equal(t, "abc-123", line["request_id"])
	assert.Equal(t, "echo", line["method"])
}

func TestRateLimit(t *testing.T) {
	s := newServer(RateLimit(rate.NewLimiter(rate.Every(time.Hour), 2)))

	assert.Nil(t, call(t, s, context.Background(), "echo").Error)
	assert.Nil(t, call(t, s, context.Background(), "echo").Error)

	resp := call(t, s, context.Background(), "echo")
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeServerError, resp.Error.Code)
	assert.Equal(t, MsgRateLimited, resp.Error.Message)
	assert.Equal(t, "1", resp.ID.String())
}

func TestRequireAuth(t *testing.T) {
	s := newServer(RequireAuth("authenticate"))

	resp := call(t, s, context.Background(), "echo")
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeServerError, resp.Error.Code)
	assert.Equal(t, MsgUnauthorized, resp.Error.Message)

	resp = call(t, s, context.Background(), "authenticate")
	assert.Nil(t, resp.Error)

	anonymous := jsonrpc.WithHTTPRequest(context.Background(), httptest.NewRequest("POST", "/jsonrpc", nil))
	resp = call(t, s, anonymous, "echo")
	require.NotNil(t, resp.Error)

	r := httptest.NewRequest("POST", "/jsonrpc", nil)
	r = r.WithContext(auth.WithPrincipal(r.Context(), &auth.Principal{Subject: "u"}))
	resp = call(t, s, jsonrpc.WithHTTPRequest(context.Background(), r), "echo")
	assert.Nil(t, resp.Error)
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	s := newServer(Recover())

	resp := call(t, s, log.WithContext(context.Background()), "panic")
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeInternalError, resp.Error.Code)
	assert.Contains(t, buf.String(), "kaboom")

	assert.Nil(t, call(t, s, context.Background(), "echo").Error)
}

func TestRecover_ProtectsLaterMiddleware(t *testing.T) {
	explode := func(ctx context.Context, req *jsonrpc.Request, next jsonrpc.Next) (*jsonrpc.Response, error) {
		panic("middleware")
	}
	s := newServer(Recover(), explode)

	resp := call(t, s, context.Background(), "echo")
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeInternalError, resp.Error.Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw, err := Metrics(reg)
	require.NoError(t, err)
	s := newServer(mw)

	call(t, s, context.Background(), "echo")
	call(t, s, context.Background(), "echo")
	call(t, s, context.Background(), "fail")
	call(t, s, context.Background(), "nope")

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	observed := map[string]uint64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			switch mf.GetName() {
			case "rpcgate_rpc_requests_total":
				counts[labels["method"]+"/"+labels["outcome"]] = m.GetCounter().GetValue()
			case "rpcgate_rpc_duration_seconds":
				observed[labels["method"]] = m.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, map[string]float64{"echo/ok": 2, "fail/error": 1, "unknown/error": 1}, counts)
	assert.Equal(t, map[string]uint64{"echo": 2, "fail": 1, "unknown": 1}, observed)
}

func TestMetrics_UnregisteredMethodsShareOneSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw, err := Metrics(reg)
	require.NoError(t, err)
	s := newServer(mw, RateLimit(rate.NewLimiter(rate.Every(time.Hour), 10)))

	for i := range 100 {
		call(t, s, context.Background(), fmt.Sprintf("junk-%d", i))
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	var series int
	for _, mf := range families {
		if mf.GetName() != "rpcgate_rpc_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			series++
			for _, l := range m.GetLabel() {
				if l.GetName() == "method" {
					assert.Equal(t, MethodUnknown, l.GetValue())
				}
			}
			assert.Equal(t, float64(100), m.GetCounter().GetValue())
		}
	}
	assert.Equal(t, 1, series)
}

func TestMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := Metrics(reg)
	require.NoError(t, err)
	second, err := Metrics(reg)
	require.NoError(t, err)

	call(t, newServer(first), context.Background(), "echo")
	call(t, newServer(second), context.Background(), "echo")

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "rpcgate_rpc_requests_total" {
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, float64(2), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

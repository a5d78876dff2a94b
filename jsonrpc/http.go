package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcgate/endpoint"
)

// Path is where Handler mounts the JSON-RPC endpoint.
const Path = "/jsonrpc"

// ShutdownTimeout bounds graceful shutdown in Serve.
var ShutdownTimeout = 5 * time.Second

// rpcParams captures the raw JSON-RPC request body.
// Parsing is deferred to the dispatch core, as JSON-RPC reports malformed
// JSON as a response rather than an HTTP error.
type rpcParams struct {
	ContentType string `header:"Content-Type"`
	Body        []byte `body:""`
}

// Endpoint is the endpoint function that processes JSON-RPC requests.
// Pass to endpoint.Handler() to create an http.Handler.
//
// Every produced response, RPC errors included, is written with status 200.
// Notifications and empty batches produce 204 with no body.
func (s *Server) Endpoint(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}
	if params.ContentType != "" && !strings.HasPrefix(params.ContentType, "application/json") {
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
	}

	ctx := WithHTTPRequest(r.Context(), r)
	log := s.logger(ctx)
	log.Debug().RawJSON("body", loggable(params.Body)).Msg("Incoming Request")

	reply := s.ReceiveJSON(ctx, params.Body)
	if reply.Empty() {
		log.Debug().Msg("Response: no content")
		return &endpoint.NoContentRenderer{}, nil
	}
	body, err := json.Marshal(reply)
	if err != nil {
		return nil, err
	}
	log.Debug().RawJSON("body", body).Msg("Response")
	return &endpoint.RawJSONRenderer{Body: body}, nil
}

// logger prefers the request-scoped logger over the server's own.
func (s *Server) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return s.log
}

// loggable returns body when it can be embedded as raw JSON in a log line.
func loggable(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// HealthPath is where Handler serves the health check.
const HealthPath = "/healthz"

// health reports the server as up along with its registered methods.
func (s *Server) health(http.ResponseWriter, *http.Request, struct{}) (endpoint.Renderer, error) {
	return &endpoint.JSONRenderer{Value: map[string]any{
		"status":  "ok",
		"methods": s.Methods(),
	}}, nil
}

// Handler returns an http.Handler serving the JSON-RPC endpoint on Path, run
// behind processors, GET HealthPath, and GET /metrics when a gatherer is
// configured. The health check skips processors.
func (s *Server) Handler(processors ...endpoint.Processor) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, endpoint.Handler(s.Endpoint, processors...))
	mux.HandleFunc("GET "+HealthPath, endpoint.HandleFunc(s.health))
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe listens on the configured host and port and serves until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, processors ...endpoint.Processor) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, processors...)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener, processors ...endpoint.Processor) error {
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()

	srv := &http.Server{
		Handler:           s.Handler(processors...),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return s.log.WithContext(context.Background())
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info().Str("url", s.URL()).Msg("jsonrpc server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

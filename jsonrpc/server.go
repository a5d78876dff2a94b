package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 3000
)

// Next invokes the rest of the middleware chain and, at its end, the method.
type Next func(ctx context.Context, req *Request) (*Response, error)

// Middleware intercepts every dispatched call. It may call next, return its
// own response without calling next, or fail. An error becomes an error
// response: an *Error keeps its code, anything else is CodeInternalError.
type Middleware func(ctx context.Context, req *Request, next Next) (*Response, error)

// Config describes a Server. Every field is optional.
type Config struct {
	// Host and Port default to localhost:3000.
	Host string
	Port int

	// NextID overrides the server's id generator (a Sequence from 1).
	NextID IDGenerator

	// Context seeds the server's read-only Values.
	Context map[string]any

	Methods         map[string]MethodFunc
	AdvancedMethods map[string]AdvancedMethodFunc

	// Middleware runs before anything added with AddMiddleware, in order.
	Middleware []Middleware

	Logger *zerolog.Logger

	// Gatherer, when set, is served on GET /metrics by Handler.
	Gatherer prometheus.Gatherer
}

// Server is a JSON-RPC 2.0 dispatch core with its method registry, middleware
// pipeline, id generator and shared context.
type Server struct {
	host     string
	port     int
	ids      IDGenerator
	values   Values
	log      *zerolog.Logger
	gatherer prometheus.Gatherer

	mu         sync.RWMutex
	methods    map[string]Method
	middleware []Middleware

	addrMu sync.Mutex
	addr   net.Addr
}

func NewServer(cfg Config) *Server {
	s := &Server{
		host:     cfg.Host,
		port:     cfg.Port,
		ids:      cfg.NextID,
		values:   NewValues(cfg.Context),
		log:      cfg.Logger,
		gatherer: cfg.Gatherer,
		methods:  make(map[string]Method),
	}
	if s.host == "" {
		s.host = DefaultHost
	}
	if s.port == 0 {
		s.port = DefaultPort
	}
	if s.ids == nil {
		s.ids = NewSequence()
	}
	if s.log == nil {
		nop := zerolog.Nop()
		s.log = &nop
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Methods)) {
		s.AddMethod(name, cfg.Methods[name])
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.AdvancedMethods)) {
		s.AddMethodAdvanced(name, cfg.AdvancedMethods[name])
	}
	s.AddMiddleware(cfg.Middleware...)
	return s
}

// AddMethod registers a plain handler. A later registration of the same name,
// of either kind, replaces it.
func (s *Server) AddMethod(name string, fn MethodFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.methods[name] = fn
	s.mu.Unlock()
}

// AddMethodAdvanced registers an envelope-level handler. A later registration
// of the same name, of either kind, replaces it.
func (s *Server) AddMethodAdvanced(name string, fn AdvancedMethodFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.methods[name] = fn
	s.mu.Unlock()
}

// Register adds methods from a receiver struct.
// The namespace prefixes all method names (e.g., "math" + "Add" -> "math.Add").
// Use empty string for no namespace.
// Only exported methods with valid signatures are registered.
func (s *Server) Register(namespace string, receiver any) {
	for name, fn := range reflectMethods(namespace, receiver) {
		s.AddMethod(name, fn)
	}
}

// AddMiddleware appends middleware. Middleware runs in registration order,
// the first registered outermost.
func (s *Server) AddMiddleware(mw ...Middleware) {
	s.mu.Lock()
	for _, m := range mw {
		if m != nil {
			s.middleware = append(s.middleware, m)
		}
	}
	s.mu.Unlock()
}

// Methods returns the registered method names, sorted.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.methods))
}

type serverKey struct{}

// HasMethod reports whether method is registered on the server dispatching
// the call carried by ctx. It is false outside a dispatch.
func HasMethod(ctx context.Context, method string) bool {
	s, ok := ctx.Value(serverKey{}).(*Server)
	if !ok {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok = s.methods[method]
	return ok
}

// Context returns the server's shared Values.
func (s *Server) Context() Values {
	return s.values
}

// NextID draws a fresh id from the server's generator.
func (s *Server) NextID() ID {
	return s.ids.Next()
}

// IDs returns the server's id generator.
func (s *Server) IDs() IDGenerator {
	return s.ids
}

func (s *Server) Logger() *zerolog.Logger {
	return s.log
}

func (s *Server) Host() string { return s.host }

func (s *Server) Port() int { return s.port }

// Addr returns the address the server is listening on, or the configured
// host:port before it starts.
func (s *Server) Addr() string {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	if s.addr != nil {
		return s.addr.String()
	}
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// URL returns the server's base URL, e.g. "http://localhost:3000/".
func (s *Server) URL() string {
	return "http://" + s.Addr() + "/"
}

// Call dispatches rpcMethod locally with params and a fresh id.
func (s *Server) Call(ctx context.Context, rpcMethod string, params any) (*Response, error) {
	req, err := NewRequest(rpcMethod, params, s.NextID())
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode params for %s: %w", rpcMethod, err)
	}
	return s.Receive(ctx, req), nil
}

// Receive dispatches a single request. It returns nil for notifications.
// An invalid request is answered with id null even when it has no id.
func (s *Server) Receive(ctx context.Context, req *Request) *Response {
	if req == nil {
		return NewErrorResponse(NullID, NewInvalidRequestError(""))
	}
	if rpcErr := req.validate(); rpcErr != nil {
		return NewErrorResponse(NullID, rpcErr)
	}
	resp := s.dispatch(ctx, req)
	if req.IsNotification() {
		return nil
	}
	return resp
}

// ReceiveBatch dispatches requests concurrently. Responses keep request order
// with notifications left out; the result is nil when nothing is left.
func (s *Server) ReceiveBatch(ctx context.Context, reqs []*Request) []*Response {
	return fanOut(len(reqs), func(i int) *Response {
		return s.Receive(ctx, reqs[i])
	})
}

// ReceiveJSON dispatches raw request text: one request object or a batch.
func (s *Server) ReceiveJSON(ctx context.Context, data []byte) Reply {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return Reply{single: NewErrorResponse(NullID, NewParseError(""))}
	}
	if data[0] != '[' {
		return Reply{single: s.receiveRaw(ctx, data)}
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return Reply{single: NewErrorResponse(NullID, NewParseError(""))}
	}
	return Reply{batch: fanOut(len(elems), func(i int) *Response {
		return s.receiveRaw(ctx, elems[i])
	})}
}

func (s *Server) receiveRaw(ctx context.Context, raw json.RawMessage) *Response {
	req, rpcErr := parseRequest(raw)
	if rpcErr != nil {
		return NewErrorResponse(NullID, rpcErr)
	}
	return s.Receive(ctx, req)
}

// fanOut runs fn for 0..n-1 concurrently and returns the non-nil results in
// index order.
func fanOut(n int, fn func(i int) *Response) []*Response {
	if n == 0 {
		return nil
	}
	results := make([]*Response, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			results[i] = fn(i)
			return nil
		})
	}
	_ = g.Wait()
	out := slices.DeleteFunc(results, func(r *Response) bool { return r == nil })
	if len(out) == 0 {
		return nil
	}
	return out
}

// dispatch runs the middleware chain for a valid request and always returns a
// response envelope.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	ctx = WithValues(ctx, s.values)
	ctx = context.WithValue(ctx, serverKey{}, s)
	if zerolog.Ctx(ctx).GetLevel() == zerolog.Disabled {
		ctx = s.log.WithContext(ctx)
	}

	s.mu.RLock()
	chain := s.middleware
	s.mu.RUnlock()

	var next Next = s.invoke
	for i := len(chain) - 1; i >= 0; i-- {
		mw, inner := chain[i], next
		next = func(ctx context.Context, req *Request) (*Response, error) {
			return mw(ctx, req, inner)
		}
	}

	resp, err := guard(ctx, req, next)
	if err != nil {
		return NewErrorResponse(req.ID, AsError(err))
	}
	if resp == nil {
		return NewErrorResponse(req.ID, NewInternalError("method returned no response"))
	}
	resp.JSONRPC = Version
	return resp
}

// guard calls next, turning a panic into CodeInternalError.
func guard(ctx context.Context, req *Request, next Next) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().Str("method", req.Method).Interface("panic", r).Msg("jsonrpc panic")
			resp, err = nil, NewInternalError("")
		}
	}()
	return next(ctx, req)
}

// invoke is the end of the middleware chain: registry lookup and call.
func (s *Server) invoke(ctx context.Context, req *Request) (*Response, error) {
	s.mu.RLock()
	m, ok := s.methods[req.Method]
	s.mu.RUnlock()
	if !ok {
		return NewErrorResponse(req.ID, NewMethodNotFoundError(req.Method)), nil
	}

	switch fn := m.(type) {
	case MethodFunc:
		result, err := fn(ctx, req.Params)
		if err != nil {
			return NewErrorResponse(req.ID, AsError(err)), nil
		}
		return NewResultResponse(req.ID, result), nil
	case AdvancedMethodFunc:
		return fn(ctx, req)
	}
	return nil, fmt.Errorf("jsonrpc: unknown method kind %T", m)
}

type httpRequestKey struct{}

// WithHTTPRequest records the inbound HTTP request in ctx.
func WithHTTPRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, httpRequestKey{}, r)
}

// HTTPRequestFromContext returns the inbound HTTP request a call arrived on,
// or nil for calls dispatched locally.
func HTTPRequestFromContext(ctx context.Context) *http.Request {
	r, _ := ctx.Value(httpRequestKey{}).(*http.Request)
	return r
}

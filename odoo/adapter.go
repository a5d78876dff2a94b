package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/mnehpets/rpcgate/jsonrpc"
)

// Adapter exposes the backend's record operations as advanced JSON-RPC
// methods. Each inbound call is validated against its args tuple, wrapped in
// {service, method, args} and forwarded as a "call" with a fresh id; the
// backend's result or error comes back under the inbound id.
type Adapter struct {
	ctx            Context
	objectMethod   string
	methodFromArgs bool
	ids            jsonrpc.IDGenerator
	httpClient     *http.Client
	tokenSource    oauth2.TokenSource
	log            *zerolog.Logger

	backend  *jsonrpc.Client
	fallback *jsonrpc.Sequence
}

type Option func(*Adapter)

// WithObjectMethod sets the object-service method, e.g. "execute_kw".
func WithObjectMethod(method string) Option {
	return func(a *Adapter) { a.objectMethod = method }
}

// WithMethodFromArgs makes the object-service method the tuple's own method
// element (e.g. "search_read" or "write") instead of a fixed method.
func WithMethodFromArgs() Option {
	return func(a *Adapter) { a.methodFromArgs = true }
}

// WithIDGenerator sets the generator for outbound ids. Without it the
// adapter shares the generator of the server it is registered on.
func WithIDGenerator(ids jsonrpc.IDGenerator) Option {
	return func(a *Adapter) { a.ids = ids }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(a *Adapter) { a.httpClient = hc }
}

// WithTokenSource authenticates outbound calls with an OAuth2 bearer token,
// for backends behind an authenticating proxy.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(a *Adapter) { a.tokenSource = ts }
}

func WithLogger(l *zerolog.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

func NewAdapter(c Context, opts ...Option) *Adapter {
	a := &Adapter{ctx: c, objectMethod: DefaultObjectMethod, fallback: jsonrpc.NewSequence()}
	for _, opt := range opts {
		opt(a)
	}
	if a.objectMethod == "" {
		a.objectMethod = DefaultObjectMethod
	}
	hc := a.httpClient
	if hc == nil {
		hc = http.DefaultClient
	}
	if a.tokenSource != nil {
		hc = oauth2.NewClient(context.WithValue(context.Background(), oauth2.HTTPClient, hc), a.tokenSource)
	}
	a.backend = &jsonrpc.Client{URL: c.URL, HTTPClient: hc, Logger: a.log}
	return a
}

func (a *Adapter) Context() Context {
	return a.ctx
}

// Methods returns the adapter's advanced methods keyed by name.
func (a *Adapter) Methods() map[string]jsonrpc.AdvancedMethodFunc {
	return map[string]jsonrpc.AdvancedMethodFunc{
		"authenticate": a.Authenticate,
		"create":       a.Create,
		"read":         a.Read,
		"search":       a.Search,
		"search_read":  a.SearchRead,
		"update":       a.Update,
		"delete":       a.Delete,
		"fields_get":   a.FieldsGet,
	}
}

// Register installs the adapter's methods on s. Unless WithIDGenerator was
// given, outbound ids are drawn from s's generator.
func (a *Adapter) Register(s *jsonrpc.Server) {
	if a.ids == nil {
		a.ids = s.IDs()
	}
	for name, fn := range a.Methods() {
		s.AddMethodAdvanced(name, fn)
	}
}

func (a *Adapter) nextID() jsonrpc.ID {
	if a.ids == nil {
		return a.fallback.Next()
	}
	return a.ids.Next()
}

// Authenticate forwards [db, login, password, env?] to common.authenticate.
// If the backend cannot be reached the result is false, never an error.
func (a *Adapter) Authenticate(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var args AuthArgs
	if _, rpcErr := decodeArgs(req, &args); rpcErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpcErr), nil
	}
	resp, err := a.forward(ctx, req, CommonParams(args))
	if err != nil {
		return jsonrpc.NewResultResponse(req.ID, false), nil
	}
	return resp, nil
}

func (a *Adapter) Create(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return a.object(ctx, req, new(CreateArgs))
}

func (a *Adapter) Read(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return a.object(ctx, req, new(ReadArgs))
}

func (a *Adapter) Search(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return a.object(ctx, req, new(SearchArgs))
}

func (a *Adapter) SearchRead(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return a.object(ctx, req, new(SearchReadArgs))
}

func (a *Adapter) Update(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return a.object(ctx, req, new(UpdateArgs))
}

func (a *Adapter) Delete(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return a.object(ctx, req, new(DeleteArgs))
}

func (a *Adapter) FieldsGet(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return a.object(ctx, req, new(FieldsGetArgs))
}

// object validates the args tuple into dst and forwards the caller's args
// unchanged to the object service.
func (a *Adapter) object(ctx context.Context, req *jsonrpc.Request, dst objectArgs) (*jsonrpc.Response, error) {
	raw, rpcErr := decodeArgs(req, dst)
	if rpcErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpcErr), nil
	}
	p := ObjectParams(raw)
	p.Method = a.objectMethod
	if a.methodFromArgs {
		p.Method = dst.call().Method
	}
	resp, err := a.forward(ctx, req, p)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewInternalError(err.Error())), nil
	}
	return resp, nil
}

// decodeArgs extracts params.args from req and decodes it into dst.
func decodeArgs(req *jsonrpc.Request, dst json.Unmarshaler) (json.RawMessage, *jsonrpc.Error) {
	var p inboundParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, jsonrpc.NewInvalidParamsError("params must be an object with args")
	}
	raw := bytes.TrimSpace(p.Args)
	if len(raw) == 0 {
		return nil, jsonrpc.NewInvalidParamsError("missing param: args")
	}
	if err := dst.UnmarshalJSON(raw); err != nil {
		return nil, jsonrpc.NewInvalidParamsError(err.Error())
	}
	return raw, nil
}

// forward posts params to the backend under a fresh id and rewraps the reply
// under the inbound id. The error is a transport failure.
func (a *Adapter) forward(ctx context.Context, req *jsonrpc.Request, params Params) (*jsonrpc.Response, error) {
	out, err := jsonrpc.NewRequest(OutboundMethod, params, a.nextID())
	if err != nil {
		return nil, err
	}
	log := a.logger(ctx).With().
		Str("method", req.Method).
		Str("service", params.Service).
		Stringer("outbound_id", out.ID).
		Logger()

	resp, err := a.backend.Do(ctx, out)
	if err == nil && resp == nil {
		err = errors.New("odoo: backend returned no response")
	}
	if err != nil {
		log.Warn().Err(err).Msg("backend call failed")
		return nil, err
	}
	if resp.Error != nil {
		log.Debug().Int("code", resp.Error.Code).Str("message", resp.Error.Message).Msg("backend error")
	}
	return &jsonrpc.Response{
		JSONRPC: jsonrpc.Version,
		Result:  resp.Result,
		Error:   resp.Error,
		ID:      req.ID,
	}, nil
}

func (a *Adapter) logger(ctx context.Context) *zerolog.Logger {
	if a.log != nil {
		return a.log
	}
	return zerolog.Ctx(ctx)
}

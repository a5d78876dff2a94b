package odoo

import "encoding/json"

const (
	ServiceObject = "object"
	ServiceCommon = "common"

	// DefaultObjectMethod is the object-service method the adapter calls
	// unless WithObjectMethod overrides it.
	DefaultObjectMethod = "execute"
	MethodExecuteKW     = "execute_kw"
	MethodAuthenticate  = "authenticate"

	// OutboundMethod is the JSON-RPC method name of every backend call.
	OutboundMethod = "call"
)

// Params is the backend's {service, method, args} calling convention. It is
// also the shape of inbound params for the adapter's methods, where only
// Args is read.
type Params struct {
	Service string `json:"service,omitempty"`
	Method  string `json:"method,omitempty"`
	Args    any    `json:"args"`
}

// ObjectParams wraps args for the object service's default method.
func ObjectParams(args any) Params {
	return Params{Service: ServiceObject, Method: DefaultObjectMethod, Args: args}
}

// CommonParams wraps args for common.authenticate.
func CommonParams(args any) Params {
	return Params{Service: ServiceCommon, Method: MethodAuthenticate, Args: args}
}

// inboundParams is Params as decoded from an inbound request.
type inboundParams struct {
	Args json.RawMessage `json:"args"`
}

// Context is the fixed backend location captured by an Adapter.
type Context struct {
	// URL is the backend's JSON-RPC endpoint.
	URL string
	// DB is the tenant database name.
	DB string
}

// NewContext derives the backend URL from the tenant database and the
// service host: https://{db}.{serviceHost}/jsonrpc.
func NewContext(db, serviceHost string) Context {
	return Context{URL: "https://" + db + "." + serviceHost + "/jsonrpc", DB: db}
}

// Values returns the context as a map, for seeding a server's shared Values.
func (c Context) Values() map[string]any {
	return map[string]any{"url": c.URL, "db": c.DB}
}

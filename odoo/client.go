package odoo

import (
	"context"

	"github.com/mnehpets/rpcgate/jsonrpc"
)

// Client calls a gateway's adapter methods. Each call sends
// {service, method, args} params under a fresh id; the Method literal of
// object tuples is filled in when left empty.
type Client struct {
	rpc *jsonrpc.Client
}

// NewClient returns a Client posting to the gateway endpoint at url.
func NewClient(url string, opts ...jsonrpc.ClientOption) *Client {
	return &Client{rpc: jsonrpc.NewClient(url, opts...)}
}

func (c *Client) Authenticate(ctx context.Context, args AuthArgs) (*jsonrpc.Response, error) {
	return c.rpc.Call(ctx, "authenticate", CommonParams(args))
}

func (c *Client) Create(ctx context.Context, args CreateArgs) (*jsonrpc.Response, error) {
	fill(&args.Call, "create")
	return c.rpc.Call(ctx, "create", ObjectParams(args))
}

func (c *Client) Read(ctx context.Context, args ReadArgs) (*jsonrpc.Response, error) {
	fill(&args.Call, "read")
	return c.rpc.Call(ctx, "read", ObjectParams(args))
}

func (c *Client) Search(ctx context.Context, args SearchArgs) (*jsonrpc.Response, error) {
	fill(&args.Call, "search")
	return c.rpc.Call(ctx, "search", ObjectParams(args))
}

func (c *Client) SearchRead(ctx context.Context, args SearchReadArgs) (*jsonrpc.Response, error) {
	fill(&args.Call, "search_read")
	return c.rpc.Call(ctx, "search_read", ObjectParams(args))
}

func (c *Client) Update(ctx context.Context, args UpdateArgs) (*jsonrpc.Response, error) {
	fill(&args.Call, "write")
	return c.rpc.Call(ctx, "update", ObjectParams(args))
}

func (c *Client) Delete(ctx context.Context, args DeleteArgs) (*jsonrpc.Response, error) {
	fill(&args.Call, "unlink")
	return c.rpc.Call(ctx, "delete", ObjectParams(args))
}

func (c *Client) FieldsGet(ctx context.Context, args FieldsGetArgs) (*jsonrpc.Response, error) {
	fill(&args.Call, "fields_get")
	return c.rpc.Call(ctx, "fields_get", ObjectParams(args))
}

func fill(c *Call, method string) {
	if c.Method == "" {
		c.Method = method
	}
}

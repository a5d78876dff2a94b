// Package jsonrpc is a JSON-RPC 2.0 dispatch core with an HTTP endpoint built
// on the endpoint package's processor chain.
//
// It implements the JSON-RPC 2.0 specification (https://www.jsonrpc.org/specification)
// and JSON-RPC over HTTP (https://www.simple-is-better.org/json-rpc/transport_http.html).
//
// # Basic Usage
//
// Create a server, register methods, and serve via HTTP:
//
//	s := jsonrpc.NewServer(jsonrpc.Config{Port: 8080})
//	s.Register("math", &MathMethods{})
//	log.Fatal(s.ListenAndServe(ctx))
//
// Or mount the endpoint yourself:
//
//	http.Handle("/rpc", endpoint.Handler(s.Endpoint))
//
// # Handlers
//
// There are two kinds of handler. A MethodFunc receives the raw params and
// returns a plain result; the server builds the response envelope:
//
//	s.AddMethod("echo", func(ctx context.Context, params json.RawMessage) (any, error) {
//	    return params, nil
//	})
//
// Func adapts a typed function:
//
//	s.AddMethod("add", jsonrpc.Func(func(ctx context.Context, p AddParams) (int, error) {
//	    return p.A + p.B, nil
//	}))
//
// An AdvancedMethodFunc receives the whole request and returns the whole
// response, which the server passes through unchanged:
//
//	s.AddMethodAdvanced("raw", func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
//	    return jsonrpc.NewResultResponse(req.ID, true), nil
//	})
//
// Registering a name again, with either kind, replaces the earlier handler.
//
// # Reflection Registration
//
// Register adds every exported method of a receiver with the signature
//
//	func(ctx context.Context, params <StructType>) (result, error)
//
// The namespace prefixes method names ("math" + "Add" -> "math.Add"). Both
// positional (array) and named (object) params are accepted. Use a `_` field
// with a `jsonrpc` tag to override the method name:
//
//	type AddParams struct {
//	    _ struct{} `jsonrpc:"add"`
//	    A int `json:"a"`
//	    B int `json:"b"`
//	}
//
// # Middleware
//
// Middleware wraps every call. Config.Middleware runs first, then anything
// passed to AddMiddleware, each in registration order:
//
//	s.AddMiddleware(func(ctx context.Context, req *jsonrpc.Request, next jsonrpc.Next) (*jsonrpc.Response, error) {
//	    if req.Method == "forbidden" {
//	        return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeServerError, "nope")), nil
//	    }
//	    return next(ctx, req)
//	})
//
// The call's context carries the server's Values (ValuesFromContext), the
// inbound *http.Request when the call arrived over HTTP
// (HTTPRequestFromContext) and a zerolog logger.
//
// # Error Handling
//
// Return *Error for protocol-level errors; its code is preserved. Any other
// error, and any panic, becomes CodeInternalError:
//
//	return 0, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "division by zero")
//
// # Ids
//
// Each server owns an IDGenerator, a Sequence from 1 unless Config.NextID
// overrides it. Server.Call and Server.NextID draw from it.
//
// # Processor Integration
//
// Processors can be passed to Handler or endpoint.Handler for HTTP-level
// concerns:
//
//	http.Handle("/rpc", endpoint.Handler(s.Endpoint, authProcessor, loggingProcessor))
//
// Processor errors return HTTP error responses (not JSON-RPC errors).
package jsonrpc

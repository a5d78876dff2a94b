package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(ctx context.Context, params json.RawMessage) (any, error) {
	return params, nil
}

func TestServer_Defaults(t *testing.T) {
	s := NewServer(Config{})
	assert.Equal(t, "localhost", s.Host())
	assert.Equal(t, 3000, s.Port())
	assert.Equal(t, "http://localhost:3000/", s.URL())
	assert.Equal(t, `1`, s.NextID().String())
	assert.Equal(t, `2`, s.NextID().String())
}

func TestServer_IDOverride(t *testing.T) {
	s := NewServer(Config{NextID: IDFunc(func() ID { return StringID("fixed") })})
	assert.Equal(t, `"fixed"`, s.NextID().String())
}

func TestReceive_Success(t *testing.T) {
	s := NewServer(Config{Methods: map[string]MethodFunc{"echo": echo}})
	resp := s.Receive(context.Background(), &Request{JSONRPC: "2.0", Method: "echo", Params: json.RawMessage(`["hi"]`), ID: NumberID(7)})
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
	assert.Equal(t, `7`, resp.ID.String())

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":["hi"],"id":7}`, string(out))
}

func TestReceive_Notification(t *testing.T) {
	var called atomic.Bool
	s := NewServer(Config{Methods: map[string]MethodFunc{
		"ping": func(context.Context, json.RawMessage) (any, error) {
			called.Store(true)
			return nil, nil
		},
	}})
	assert.Nil(t, s.Receive(context.Background(), &Request{JSONRPC: "2.0", Method: "ping"}))
	assert.True(t, called.Load())

	// Unknown methods stay silent for notifications too.
	assert.Nil(t, s.Receive(context.Background(), &Request{JSONRPC: "2.0", Method: "missing", ID: NullID}))
}

func TestReceive_FailingNotificationIsSilent(t *testing.T) {
	var calls atomic.Int32
	s := NewServer(Config{Methods: map[string]MethodFunc{
		"fail": func(context.Context, json.RawMessage) (any, error) {
			calls.Add(1)
			return nil, errors.New("boom")
		},
		"rpcfail": func(context.Context, json.RawMessage) (any, error) {
			calls.Add(1)
			return nil, NewError(CodeInvalidParams, "bad")
		},
		"panic": func(context.Context, json.RawMessage) (any, error) {
			calls.Add(1)
			panic("kaboom")
		},
	}})
	for _, method := range []string{"fail", "rpcfail", "panic"} {
		assert.Nil(t, s.Receive(context.Background(), &Request{JSONRPC: "2.0", Method: method}), method)
	}
	assert.Equal(t, int32(3), calls.Load())

	reply := s.ReceiveJSON(context.Background(), []byte(`[{"jsonrpc":"2.0","method":"fail"},{"jsonrpc":"2.0","method":"panic"}]`))
	assert.True(t, reply.Empty())
}

func TestReceive_InvalidRequestAlwaysAnswered(t *testing.T) {
	s := NewServer(Config{Methods: map[string]MethodFunc{"echo": echo}})
	for _, req := range []*Request{
		{JSONRPC: "1.0", Method: "echo", ID: NumberID(1)},
		{JSONRPC: "1.0", Method: "echo"},
		{JSONRPC: "2.0", Method: "", ID: NumberID(1)},
		{JSONRPC: "2.0", Method: "echo", Params: json.RawMessage(`"str"`), ID: NumberID(1)},
		nil,
	} {
		resp := s.Receive(context.Background(), req)
		require.NotNil(t, resp)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
		assert.True(t, resp.ID.IsNull())
	}
}

func TestReceiveJSON(t *testing.T) {
	s := NewServer(Config{Methods: map[string]MethodFunc{"echo": echo}})
	tests := []struct {
		name string
		body string
		want string
	}{
		{"parse error", `{"jsonrpc":"2.0","method":`, `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`},
		{"empty body", ``, `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`},
		{"version 1.0", `{"jsonrpc":"1.0","method":"echo","id":1}`, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"jsonrpc must be \"2.0\""},"id":null}`},
		{"method not string", `{"jsonrpc":"2.0","method":5,"id":1}`, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"method must be a non-empty string"},"id":null}`},
		{"bad id type", `{"jsonrpc":"2.0","method":"echo","id":{"x":1}}`, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"id must be a string, a number or null"},"id":null}`},
		{"scalar message", `42`, `{"jsonrpc":"2.0","error":{"code":-32600,"message":"request must be an object"},"id":null}`},
		{"method not found", `{"jsonrpc":"2.0","method":"nope","id":"a"}`, `{"jsonrpc":"2.0","error":{"code":-32601,"message":"Method not found","data":"nope"},"id":"a"}`},
		{"string id echoed", `{"jsonrpc":"2.0","method":"echo","params":{"k":1},"id":"abc"}`, `{"jsonrpc":"2.0","result":{"k":1},"id":"abc"}`},
		{"batch", `[{"jsonrpc":"2.0","method":"echo","params":[1],"id":1},{"jsonrpc":"2.0","method":"echo","params":[2]},1,{"jsonrpc":"2.0","method":"echo","params":[3],"id":3}]`,
			`[{"jsonrpc":"2.0","result":[1],"id":1},{"jsonrpc":"2.0","error":{"code":-32600,"message":"request must be an object"},"id":null},{"jsonrpc":"2.0","result":[3],"id":3}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := s.ReceiveJSON(context.Background(), []byte(tt.body))
			require.False(t, reply.Empty())
			out, err := json.Marshal(reply)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
		})
	}
}

func TestReceiveJSON_NoResponse(t *testing.T) {
	s := NewServer(Config{Methods: map[string]MethodFunc{"echo": echo}})
	for _, body := range []string{
		`[]`,
		`{"jsonrpc":"2.0","method":"echo"}`,
		`{"jsonrpc":"2.0","method":"echo","id":null}`,
		`[{"jsonrpc":"2.0","method":"echo"},{"jsonrpc":"2.0","method":"missing"}]`,
	} {
		assert.True(t, s.ReceiveJSON(context.Background(), []byte(body)).Empty(), body)
	}
}

func TestReceiveBatch_OrderAndConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	s := NewServer(Config{Methods: map[string]MethodFunc{
		"slow": Func(func(ctx context.Context, n int) (int, error) {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(time.Duration(5-n) * 10 * time.Millisecond)
			inFlight.Add(-1)
			return n, nil
		}),
	}})

	var reqs []*Request
	for i := 1; i <= 4; i++ {
		reqs = append(reqs, &Request{JSONRPC: "2.0", Method: "slow", Params: json.RawMessage([]byte{'[', byte('0' + i), ']'}), ID: NumberID(int64(i))})
	}
	resps := s.ReceiveBatch(context.Background(), reqs)
	require.Len(t, resps, 4)
	for i, resp := range resps {
		assert.Equal(t, NumberID(int64(i+1)).String(), resp.ID.String())
		var n int
		require.NoError(t, resp.DecodeResult(&n))
		assert.Equal(t, i+1, n)
	}
	assert.Greater(t, peak.Load(), int32(1))
}

func TestAddMethod_LastWins(t *testing.T) {
	s := NewServer(Config{})
	s.AddMethod("m", func(context.Context, json.RawMessage) (any, error) { return "simple", nil })
	s.AddMethodAdvanced("m", func(ctx context.Context, req *Request) (*Response, error) {
		return NewResultResponse(req.ID, "advanced"), nil
	})
	resp, err := s.Call(context.Background(), "m", nil)
	require.NoError(t, err)
	var got string
	require.NoError(t, resp.DecodeResult(&got))
	assert.Equal(t, "advanced", got)

	s.AddMethod("m", func(context.Context, json.RawMessage) (any, error) { return "simple", nil })
	resp, err = s.Call(context.Background(), "m", nil)
	require.NoError(t, err)
	require.NoError(t, resp.DecodeResult(&got))
	assert.Equal(t, "simple", got)
}

func TestAdvancedMethod(t *testing.T) {
	s := NewServer(Config{AdvancedMethods: map[string]AdvancedMethodFunc{
		"passthrough": func(ctx context.Context, req *Request) (*Response, error) {
			return &Response{Result: "custom", ID: StringID("other")}, nil
		},
		"nothing": func(ctx context.Context, req *Request) (*Response, error) {
			return nil, nil
		},
		"fails": func(ctx context.Context, req *Request) (*Response, error) {
			return nil, errors.New("backend down")
		},
	}})
	ctx := context.Background()

	resp := s.Receive(ctx, &Request{JSONRPC: "2.0", Method: "passthrough", ID: NumberID(1)})
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, `"other"`, resp.ID.String())
	assert.Equal(t, "custom", resp.Result)

	resp = s.Receive(ctx, &Request{JSONRPC: "2.0", Method: "nothing", ID: NumberID(2)})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
	assert.Equal(t, `2`, resp.ID.String())

	resp = s.Receive(ctx, &Request{JSONRPC: "2.0", Method: "fails", ID: NumberID(3)})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
	assert.Equal(t, "backend down", resp.Error.Message)
	assert.Equal(t, `3`, resp.ID.String())
}

func TestMiddleware_Order(t *testing.T) {
	var mu sync.Mutex
	var order []string
	mk := func(name string) Middleware {
		return func(ctx context.Context, req *Request, next Next) (*Response, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return next(ctx, req)
		}
	}
	s := NewServer(Config{
		Methods:    map[string]MethodFunc{"echo": echo},
		Middleware: []Middleware{mk("config1"), mk("config2")},
	})
	s.AddMiddleware(mk("added1"), mk("added2"))

	_, err := s.Call(context.Background(), "echo", []int{1})
	require.NoError(t, err)
	assert.Equal(t, []string{"config1", "config2", "added1", "added2"}, order)
}

func TestMiddleware_ShortCircuitAndErrors(t *testing.T) {
	var reached atomic.Bool
	s := NewServer(Config{Methods: map[string]MethodFunc{
		"echo": func(ctx context.Context, params json.RawMessage) (any, error) {
			reached.Store(true)
			return params, nil
		},
	}})
	s.AddMiddleware(func(ctx context.Context, req *Request, next Next) (*Response, error) {
		switch req.Method {
		case "blocked":
			return NewErrorResponse(req.ID, NewError(CodeServerError, "blocked")), nil
		case "typed":
			return nil, NewError(CodeServerError, "typed failure")
		case "plain":
			return nil, errors.New("plain failure")
		case "panics":
			panic("middleware panic")
		}
		return next(ctx, req)
	})
	ctx := context.Background()

	for method, code := range map[string]int{
		"blocked": CodeServerError,
		"typed":   CodeServerError,
		"plain":   CodeInternalError,
		"panics":  CodeInternalError,
	} {
		resp, err := s.Call(ctx, method, nil)
		require.NoError(t, err)
		require.NotNil(t, resp.Error, method)
		assert.Equal(t, code, resp.Error.Code, method)
	}
	assert.False(t, reached.Load())
}

func TestMiddleware_SeesValues(t *testing.T) {
	seed := map[string]any{"db": "acme", "n": 3}
	s := NewServer(Config{Context: seed})
	seed["db"] = "mutated"

	s.AddMethod("db", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return ValuesFromContext(ctx).String("db"), nil
	})
	resp, err := s.Call(context.Background(), "db", nil)
	require.NoError(t, err)
	assert.Equal(t, "acme", resp.Result)
	assert.Equal(t, []string{"db", "n"}, s.Context().Keys())
	assert.Equal(t, "3", s.Context().String("n"))
}

func TestCall_ConcurrentIDsAreUnique(t *testing.T) {
	s := NewServer(Config{Methods: map[string]MethodFunc{"echo": echo}})
	const n = 200
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.Call(context.Background(), "echo", nil)
			if err == nil {
				ids[i] = resp.ID.String()
			}
		}()
	}
	wg.Wait()
	seen := make(map[string]bool, n)
	for _, id := range ids {
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestCall_ConcurrentIDsAreContiguous(t *testing.T) {
	seq := NewSequenceFrom(40)
	s := NewServer(Config{NextID: seq, Methods: map[string]MethodFunc{"echo": echo}})
	start := seq.Peek()

	const n = 100
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.Call(context.Background(), "echo", nil)
			if err != nil {
				return
			}
			ids[i], _ = strconv.ParseInt(resp.ID.String(), 10, 64)
		}()
	}
	wg.Wait()

	slices.Sort(ids)
	for i, id := range ids {
		require.Equal(t, start+int64(i), id)
	}
	assert.Equal(t, start+n, seq.Peek())
}

func TestHasMethod(t *testing.T) {
	var known, unknown bool
	s := NewServer(Config{Methods: map[string]MethodFunc{"echo": echo}})
	s.AddMiddleware(func(ctx context.Context, req *Request, next Next) (*Response, error) {
		known = HasMethod(ctx, "echo")
		unknown = HasMethod(ctx, req.Method)
		return next(ctx, req)
	})

	resp, err := s.Call(context.Background(), "missing", nil)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.True(t, known)
	assert.False(t, unknown)

	assert.False(t, HasMethod(context.Background(), "echo"))
}

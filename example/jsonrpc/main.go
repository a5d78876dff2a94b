// Command jsonrpc runs a bare dispatch core with a few arithmetic methods.
//
//	curl -s localhost:3000/jsonrpc -H 'Content-Type: application/json' -d '{"jsonrpc":"2.0","method":"math.Add","params":{"a":1,"b":2},"id":1}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"

	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcgate/interceptor"
	"github.com/mnehpets/rpcgate/jsonrpc"
	"github.com/mnehpets/rpcgate/middleware"
)

type MathMethods struct{}

type Operands struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (m *MathMethods) Add(ctx context.Context, args Operands) (int, error) {
	return args.A + args.B, nil
}

func (m *MathMethods) Sub(ctx context.Context, args Operands) (int, error) {
	return args.A - args.B, nil
}

func (m *MathMethods) Div(ctx context.Context, args Operands) (int, error) {
	if args.B == 0 {
		return 0, jsonrpc.NewInvalidParamsError("division by zero")
	}
	return args.A / args.B, nil
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	s := jsonrpc.NewServer(jsonrpc.Config{
		Logger:     &log,
		Middleware: []jsonrpc.Middleware{interceptor.Recover(), interceptor.Logging(log)},
		Methods: map[string]jsonrpc.MethodFunc{
			"ping": jsonrpc.Func(func(ctx context.Context, _ struct{}) (string, error) {
				return "pong", nil
			}),
		},
	})
	s.Register("math", &MathMethods{})
	s.AddMethod("fail", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return nil, errors.New("always fails")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := s.ListenAndServe(ctx, middleware.NewRequestLogProcessor(log)); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

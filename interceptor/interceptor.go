// Package interceptor provides jsonrpc.Middleware implementations for the
// concerns every gateway deployment shares: logging, metrics, rate limiting,
// authorization and panic recovery.
//
// Install them through jsonrpc.Config.Middleware or Server.AddMiddleware. The
// first middleware is outermost, so a typical order is
//
//	Recover(), Logging(log), Metrics(reg), RateLimit(lim), RequireAuth("authenticate")
package interceptor

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mnehpets/rpcgate/auth"
	"github.com/mnehpets/rpcgate/jsonrpc"
)

// Messages of the CodeServerError responses produced here.
const (
	MsgRateLimited  = "rate limit exceeded"
	MsgUnauthorized = "unauthorized"
)

// Logging logs one line per call with the method, id, duration and, for
// failed calls, the error code. It writes through the logger in ctx when
// there is one, so request-scoped fields are kept, and through log otherwise.
func Logging(log zerolog.Logger) jsonrpc.Middleware {
	return func(ctx context.Context, req *jsonrpc.Request, next jsonrpc.Next) (*jsonrpc.Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		l := zerolog.Ctx(ctx)
		if l.GetLevel() == zerolog.Disabled {
			l = &log
		}
		ev := l.Info()
		if err != nil || (resp != nil && resp.Error != nil) {
			ev = l.Warn()
		}
		ev = ev.Str("method", req.Method).
			Stringer("id", req.ID).
			Dur("duration", time.Since(start))
		if err != nil {
			ev = ev.Err(err)
		} else if resp != nil && resp.Error != nil {
			ev = ev.Int("code", resp.Error.Code).Str("error", resp.Error.Message)
		}
		ev.Msg("rpc")
		return resp, err
	}
}

// RateLimit answers CodeServerError when lim has no token available. It never
// waits for one.
func RateLimit(lim *rate.Limiter) jsonrpc.Middleware {
	return func(ctx context.Context, req *jsonrpc.Request, next jsonrpc.Next) (*jsonrpc.Response, error) {
		if !lim.Allow() {
			zerolog.Ctx(ctx).Debug().Str("method", req.Method).Msg("rate limited")
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeServerError, MsgRateLimited)), nil
		}
		return next(ctx, req)
	}
}

// RequireAuth answers CodeServerError unless the call arrived over HTTP with
// a verified principal (see auth.BearerProcessor). Methods named in public are
// let through.
func RequireAuth(public ...string) jsonrpc.Middleware {
	return func(ctx context.Context, req *jsonrpc.Request, next jsonrpc.Next) (*jsonrpc.Response, error) {
		if slices.Contains(public, req.Method) {
			return next(ctx, req)
		}
		if r := jsonrpc.HTTPRequestFromContext(ctx); r != nil {
			if _, ok := auth.PrincipalFromContext(r.Context()); ok {
				return next(ctx, req)
			}
		}
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeServerError, MsgUnauthorized)), nil
	}
}

// Recover turns a panic in any later middleware or handler into
// CodeInternalError, logging the panic value.
func Recover() jsonrpc.Middleware {
	return func(ctx context.Context, req *jsonrpc.Request, next jsonrpc.Next) (resp *jsonrpc.Response, err error) {
		defer func() {
			if r := recover(); r != nil {
				zerolog.Ctx(ctx).Error().Str("method", req.Method).Interface("panic", r).Msg("recovered panic")
				resp, err = jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewInternalError("")), nil
			}
		}()
		return next(ctx, req)
	}
}

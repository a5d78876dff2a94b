package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcgate/endpoint"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds ids accepted from clients.
const maxRequestIDLength = 128

// RequestLogProcessor gives every request an id and a logger.
//
// The id is taken from the X-Request-ID request header when present and
// generated otherwise; it is echoed in the response header. The request's
// context carries a child of Logger with a request_id field, which the
// JSON-RPC dispatch core and handlers pick up through zerolog.Ctx. One line
// with method, path, status and duration is logged when the request ends.
type RequestLogProcessor struct {
	Logger zerolog.Logger
}

func NewRequestLogProcessor(log zerolog.Logger) *RequestLogProcessor {
	return &RequestLogProcessor{Logger: log}
}

// Process implements endpoint.Processor.
func (p *RequestLogProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	start := time.Now()
	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > maxRequestIDLength {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)

	log := p.Logger.With().Str("request_id", id).Logger()
	ctx := log.WithContext(r.Context())

	rec := &statusRecorder{ResponseWriter: w}
	err := next(rec, r.WithContext(ctx))

	status := rec.status
	if err != nil {
		status = http.StatusInternalServerError
		var ee *endpoint.EndpointError
		if errors.As(err, &ee) && ee.Status >= 100 {
			status = ee.Status
		}
	} else if status == 0 {
		status = http.StatusOK
	}

	ev := log.Info()
	if status >= http.StatusInternalServerError {
		ev = log.Error().Err(err)
	}
	ev.Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Msg("http request")
	return err
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

var _ endpoint.Processor = (*RequestLogProcessor)(nil)

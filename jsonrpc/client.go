package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// Client posts JSON-RPC requests to a single URL. It applies no timeout and
// no retries; cancel through ctx.
type Client struct {
	URL        string
	HTTPClient *http.Client
	// IDs supplies ids for Call. Defaults to a fresh Sequence.
	IDs IDGenerator
	// Logger defaults to the logger carried by the call's context.
	Logger *zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.HTTPClient = hc }
}

func WithIDs(ids IDGenerator) ClientOption {
	return func(c *Client) { c.IDs = ids }
}

func WithClientLogger(l *zerolog.Logger) ClientOption {
	return func(c *Client) { c.Logger = l }
}

func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{URL: url}
	for _, opt := range opts {
		opt(c)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.IDs == nil {
		c.IDs = NewSequence()
	}
	return c
}

// Call sends method with params under a fresh id.
func (c *Client) Call(ctx context.Context, method string, params any) (*Response, error) {
	ids := c.IDs
	if ids == nil {
		ids = NewSequence()
		c.IDs = ids
	}
	req, err := NewRequest(method, params, ids.Next())
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Do posts req and decodes the reply. A notification answered with no body
// returns (nil, nil). Failures to reach the peer or to decode its reply are
// reported as *TransportError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.JSONRPC == "" {
		req.JSONRPC = Version
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	log := c.Logger
	if log == nil {
		log = zerolog.Ctx(ctx)
	}
	log.Debug().Str("url", c.URL).RawJSON("request", body).Msg("Outgoing Request")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{URL: c.URL, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	httpResp, err := hc.Do(httpReq)
	if err != nil {
		log.Warn().Err(err).Str("url", c.URL).Msg("outgoing request failed")
		return nil, &TransportError{URL: c.URL, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{URL: c.URL, Status: httpResp.StatusCode, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if req.IsNotification() && httpResp.StatusCode < 300 {
			return nil, nil
		}
		return nil, &TransportError{URL: c.URL, Status: httpResp.StatusCode, Err: errors.New("empty response body")}
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		log.Warn().Err(err).Str("url", c.URL).Int("status", httpResp.StatusCode).Msg("unreadable response")
		return nil, &TransportError{URL: c.URL, Status: httpResp.StatusCode, Err: err}
	}
	log.Debug().Str("url", c.URL).RawJSON("response", data).Msg("Incoming Response")
	return &resp, nil
}

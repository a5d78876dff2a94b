package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/mnehpets/rpcgate/endpoint"
)

// SecurityHeadersProcessor sets response headers suited to a JSON API and,
// when CORS is configured, answers cross-origin requests from an allow-list.
//
// Defaults from NewSecurityHeadersProcessor:
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//   - Referrer-Policy: no-referrer
//   - X-Frame-Options: DENY
//   - X-Content-Type-Options: nosniff
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Cross-Origin-Resource-Policy: same-origin (cross-origin when CORS is set)
//
// CORS preflight (OPTIONS with Origin and Access-Control-Request-Method) is
// answered with 204 without reaching the endpoint.
type SecurityHeadersProcessor struct {
	// HSTS configures the Strict-Transport-Security header. Nil disables it.
	HSTS *HSTSConfig

	// Empty strings disable the corresponding header.
	ReferrerPolicy            string
	FrameOptions              string
	ContentSecurityPolicy     string
	CrossOriginResourcePolicy string

	ContentTypeOptions bool

	// CORS configures Cross-Origin Resource Sharing. Nil disables it.
	CORS *CORSConfig
}

// HSTSConfig configures HTTP Strict Transport Security.
type HSTSConfig struct {
	MaxAge            int // seconds
	IncludeSubDomains bool
	Preload           bool
}

// CORSConfig configures Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	// AllowedOrigins lists exact origins, or "*" for any origin. "*" is
	// ignored when AllowCredentials is set.
	AllowedOrigins []string

	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string

	AllowCredentials bool

	// MaxAge is how long, in seconds, a preflight result may be cached.
	MaxAge int
}

// DefaultCORS returns a CORSConfig for browsers posting JSON-RPC calls from
// origins.
func DefaultCORS(origins ...string) *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         600,
	}
}

type SecurityHeadersOption func(*SecurityHeadersProcessor)

// NewSecurityHeadersProcessor creates a SecurityHeadersProcessor with API defaults.
func NewSecurityHeadersProcessor(opts ...SecurityHeadersOption) *SecurityHeadersProcessor {
	p := &SecurityHeadersProcessor{
		HSTS:                      &HSTSConfig{MaxAge: 31536000, IncludeSubDomains: true},
		ReferrerPolicy:            "no-referrer",
		FrameOptions:              "DENY",
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none'",
		CrossOriginResourcePolicy: "same-origin",
		ContentTypeOptions:        true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func WithHSTS(maxAge int, includeSubDomains, preload bool) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.HSTS = &HSTSConfig{MaxAge: maxAge, IncludeSubDomains: includeSubDomains, Preload: preload}
	}
}

// WithoutHSTS disables HSTS, e.g. for a gateway served over plain HTTP.
func WithoutHSTS() SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.HSTS = nil
	}
}

func WithReferrerPolicy(policy string) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.ReferrerPolicy = policy
	}
}

func WithCSP(policy string) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.ContentSecurityPolicy = policy
	}
}

// WithCORS enables CORS. Resources become fetchable cross-origin.
func WithCORS(config *CORSConfig) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		p.CORS = config
		if config != nil && p.CrossOriginResourcePolicy == "same-origin" {
			p.CrossOriginResourcePolicy = "cross-origin"
		}
	}
}

// Process implements endpoint.Processor. Headers are applied just before the
// response is written, error responses included, so they take precedence
// over anything set further down the chain.
func (p *SecurityHeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	endpoint.Defer(r.Context(), func(w http.ResponseWriter) {
		p.apply(w, r)
	})
	if p.CORS != nil && isPreflight(r) {
		return endpoint.Error(http.StatusNoContent, "", nil)
	}
	return next(w, r)
}

func (p *SecurityHeadersProcessor) apply(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	if v := formatHSTS(p.HSTS); v != "" {
		h.Set("Strict-Transport-Security", v)
	}
	setIf(h, "Referrer-Policy", p.ReferrerPolicy)
	setIf(h, "X-Frame-Options", p.FrameOptions)
	setIf(h, "Content-Security-Policy", p.ContentSecurityPolicy)
	setIf(h, "Cross-Origin-Resource-Policy", p.CrossOriginResourcePolicy)
	if p.ContentTypeOptions {
		h.Set("X-Content-Type-Options", "nosniff")
	}

	if p.CORS != nil {
		h.Add("Vary", "Origin")
		setCORSHeaders(w, r, p.CORS)
	}
}

func setIf(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

func formatHSTS(config *HSTSConfig) string {
	if config == nil || config.MaxAge <= 0 {
		return ""
	}
	parts := []string{"max-age=" + strconv.Itoa(config.MaxAge)}
	if config.IncludeSubDomains {
		parts = append(parts, "includeSubDomains")
	}
	if config.Preload {
		parts = append(parts, "preload")
	}
	return strings.Join(parts, "; ")
}

// allowedOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when it is not allowed.
func allowedOrigin(config *CORSConfig, origin string) string {
	if slices.Contains(config.AllowedOrigins, origin) {
		return origin
	}
	// The CORS protocol forbids "*" together with credentials.
	if !config.AllowCredentials && slices.Contains(config.AllowedOrigins, "*") {
		return "*"
	}
	return ""
}

// setCORSHeaders sets CORS headers for a cross-origin request. Requests
// without an Origin header, or from an origin not in the allow-list, get none.
func setCORSHeaders(w http.ResponseWriter, r *http.Request, config *CORSConfig) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allow := allowedOrigin(config, origin)
	if allow == "" {
		return
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", allow)
	if config.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(config.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
	}

	if r.Method != http.MethodOptions {
		return
	}
	if len(config.AllowedMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
	}
	if len(config.AllowedHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
	}
	if config.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
	}
}

var _ endpoint.Processor = (*SecurityHeadersProcessor)(nil)

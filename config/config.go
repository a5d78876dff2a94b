// Package config loads the gateway's settings from the environment, after
// reading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mnehpets/rpcgate/jsonrpc"
	"github.com/mnehpets/rpcgate/odoo"
)

// MethodFromArgs is the ODOO_OBJECT_METHOD value selecting
// odoo.WithMethodFromArgs.
const MethodFromArgs = "args"

// Config is the gateway configuration. Field comments name the variable each
// field is read from.
type Config struct {
	Host string // HOST
	Port int    // PORT

	Odoo Odoo
	OIDC OIDC

	// RateLimit is the sustained calls per second allowed across all
	// callers; 0 disables limiting.
	RateLimit float64 // RATE_LIMIT
	RateBurst int     // RATE_BURST

	CORSOrigins []string // CORS_ORIGINS, comma separated

	LogLevel  zerolog.Level // LOG_LEVEL
	LogFormat string        // LOG_FORMAT: "json" or "console"

	Metrics bool // METRICS
}

// Odoo locates the backend.
type Odoo struct {
	DB   string // ODOO_DB
	Host string // ODOO_HOST, e.g. "odoo.com"
	// URL overrides the https://{DB}.{Host}/jsonrpc default.
	URL string // ODOO_URL

	// ObjectMethod is the object-service method, or MethodFromArgs to use
	// the method named inside each call's args.
	ObjectMethod string // ODOO_OBJECT_METHOD
	// BearerToken is sent on outbound calls, for backends behind an
	// authenticating proxy.
	BearerToken string // ODOO_BEARER_TOKEN
}

// OIDC enables inbound bearer token verification when Issuer is set.
type OIDC struct {
	Issuer   string // OIDC_ISSUER
	ClientID string // OIDC_CLIENT_ID
}

// Load reads files (".env" when none are given) into the environment without
// overriding variables already set, then parses the environment. A missing
// default .env file is not an error.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return Parse(os.Getenv)
}

// Parse builds a Config from getenv.
func Parse(getenv func(string) string) (*Config, error) {
	c := &Config{
		Host:      jsonrpc.DefaultHost,
		Port:      jsonrpc.DefaultPort,
		RateBurst: 1,
		LogLevel:  zerolog.InfoLevel,
		LogFormat: "json",
	}
	p := parser{getenv: getenv}

	if v := getenv("HOST"); v != "" {
		c.Host = v
	}
	p.int("PORT", &c.Port)

	c.Odoo = Odoo{
		DB:           getenv("ODOO_DB"),
		Host:         getenv("ODOO_HOST"),
		URL:          getenv("ODOO_URL"),
		ObjectMethod: getenv("ODOO_OBJECT_METHOD"),
		BearerToken:  getenv("ODOO_BEARER_TOKEN"),
	}
	c.OIDC = OIDC{Issuer: getenv("OIDC_ISSUER"), ClientID: getenv("OIDC_CLIENT_ID")}

	p.float("RATE_LIMIT", &c.RateLimit)
	p.int("RATE_BURST", &c.RateBurst)
	p.bool("METRICS", &c.Metrics)

	for _, o := range strings.Split(getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			c.CORSOrigins = append(c.CORSOrigins, o)
		}
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(v))
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("LOG_LEVEL: %w", err))
		} else {
			c.LogLevel = lvl
		}
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = strings.ToLower(v)
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT: %d out of range", c.Port))
	}
	if c.Odoo.URL == "" && (c.Odoo.DB == "" || c.Odoo.Host == "") {
		errs = append(errs, errors.New("ODOO_URL or both ODOO_DB and ODOO_HOST must be set"))
	}
	if c.OIDC.Issuer != "" && c.OIDC.ClientID == "" {
		errs = append(errs, errors.New("OIDC_CLIENT_ID must be set with OIDC_ISSUER"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("RATE_LIMIT must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, errors.New("RATE_BURST must be at least 1"))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT: unknown format %q", c.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// OdooContext returns the backend location.
func (c *Config) OdooContext() odoo.Context {
	if c.Odoo.URL != "" {
		return odoo.Context{URL: c.Odoo.URL, DB: c.Odoo.DB}
	}
	return odoo.NewContext(c.Odoo.DB, c.Odoo.Host)
}

// Limiter returns the configured rate limiter, or nil when limiting is off.
func (c *Config) Limiter() *rate.Limiter {
	if c.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.RateLimit), c.RateBurst)
}

// Logger returns a logger writing to w in the configured format and level.
func (c *Config) Logger(w io.Writer) zerolog.Logger {
	if c.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(c.LogLevel).With().Timestamp().Logger()
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) int(key string, dst *int) {
	v := p.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (p *parser) float(key string, dst *float64) {
	v := p.getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return
	}
	*dst = f
}

func (p *parser) bool(key string, dst *bool) {
	v := p.getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

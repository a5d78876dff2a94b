package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcgate/endpoint"
)

// BearerProcessor verifies an "Authorization: Bearer <id_token>" header and
// stores the resulting Principal in the request context.
//
// A request without a bearer token passes through unauthenticated; deciding
// whether that is allowed is left to the handler. A token that fails
// verification is rejected with 401.
type BearerProcessor struct {
	Verifier *Verifier
}

func NewBearerProcessor(v *Verifier) *BearerProcessor {
	return &BearerProcessor{Verifier: v}
}

// Process implements endpoint.Processor.
func (p *BearerProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	raw, ok := bearerToken(r)
	if !ok {
		return next(w, r)
	}
	principal, err := p.Verifier.Verify(r.Context(), raw)
	if err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("bearer token rejected")
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		return endpoint.Error(http.StatusUnauthorized, "invalid bearer token", err)
	}
	return next(w, r.WithContext(WithPrincipal(r.Context(), principal)))
}

// bearerToken extracts the token of a Bearer authorization header. ok is false
// when the header is absent or uses another scheme.
func bearerToken(r *http.Request) (token string, ok bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

var _ endpoint.Processor = (*BearerProcessor)(nil)

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnehpets/rpcgate/endpoint"
)

func whoami(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		return &endpoint.JSONRenderer{Value: "anonymous"}, nil
	}
	return &endpoint.JSONRenderer{Value: p.StableID}, nil
}

func TestBearerProcessor(t *testing.T) {
	iss := newTestIssuer(t, "https://issuer.example.com")
	h := endpoint.Handler(whoami, NewBearerProcessor(NewStaticVerifier(iss.url, testClientID, iss.keys())))
	valid := iss.mint(t, "user123", testClientID, time.Now().Add(time.Hour), nil)

	tests := []struct {
		name       string
		auth       string
		wantStatus int
		wantBody   string
	}{
		{"no header", "", http.StatusOK, "anonymous"},
		{"other scheme", "Basic YWRtaW46c2VjcmV0", http.StatusOK, "anonymous"},
		{"valid", "Bearer " + valid, http.StatusOK, "https://issuer.example.com:user123"},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "https://issuer.example.com:user123"},
		{"invalid", "Bearer nope", http.StatusUnauthorized, "invalid bearer token\n"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "invalid bearer token\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				var who string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &who))
				assert.Equal(t, tt.wantBody, who)
			} else {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Bearer error="invalid_token"`, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestPrincipalFromContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	_, ok = PrincipalFromContext(WithPrincipal(context.Background(), nil))
	assert.False(t, ok)

	p, ok := PrincipalFromContext(WithPrincipal(context.Background(), &Principal{Subject: "s"}))
	require.True(t, ok)
	assert.Equal(t, "s", p.Subject)
}

package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const identityJSON = `{
	"id": "3f1c2a8e-0000-4000-8000-000000000001",
	"schema_id": "default",
	"schema_url": "http://kratos/schemas/default",
	"state": "active",
	"traits": {"email": "ada@example.com", "phone": "+2348000000000", "name": "Ada"}
}`

type fakeKratos struct {
	server        *httptest.Server
	deleted       atomic.Int32
	lastAuth      atomic.Value
	existingEmail string
}

func newFakeKratos(t *testing.T) *fakeKratos {
	t.Helper()
	f := &fakeKratos{existingEmail: "taken@example.com"}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /sessions/whoami", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Session-Token") != "good-token" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"no session"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"sess-1","active":true,"identity":` + identityJSON + `}`))
	})

	mux.HandleFunc("GET /self-service/login/api", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "flow-1",
			"type": "api",
			"state": "choose_method",
			"expires_at": "2030-01-01T00:00:00Z",
			"issued_at": "2026-01-01T00:00:00Z",
			"request_url": "http://kratos/self-service/login/api",
			"ui": {"action": "http://kratos/self-service/login?flow=flow-1", "method": "POST", "nodes": []}
		}`))
	})

	mux.HandleFunc("POST /self-service/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body["password"] != "correct-horse" || r.URL.Query().Get("flow") != "flow-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"id":"flow-1","type":"api","state":"choose_method","expires_at":"2030-01-01T00:00:00Z","issued_at":"2026-01-01T00:00:00Z","request_url":"http://kratos","ui":{"action":"x","method":"POST","nodes":[]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"session_token":"good-token","session":{"id":"sess-1","active":true,"expires_at":"2030-01-01T00:00:00Z","identity":` + identityJSON + `}}`))
	})

	mux.HandleFunc("DELETE /self-service/logout/api", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /admin/identities", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("credentials_identifier") == f.existingEmail {
			_, _ = w.Write([]byte(`[` + strings.Replace(identityJSON, "ada@example.com", f.existingEmail, 1) + `]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	mux.HandleFunc("POST /admin/identities", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Traits map[string]any `json:"traits"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		if body.Traits["email"] == f.existingEmail {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"code":409,"message":"exists"}}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(identityJSON))
	})

	mux.HandleFunc("DELETE /admin/identities/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.deleted.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":"v1.3.0"}`))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeKratos) store() *KratosStore {
	return NewKratosStore(KratosConfig{
		PublicURL:  f.server.URL,
		PublicKey:  "public-key",
		AdminURL:   f.server.URL,
		ServiceKey: "service-key",
	})
}

func TestKratosStore_VerifyToken(t *testing.T) {
	f := newFakeKratos(t)
	s := f.store()

	ident, err := s.VerifyToken(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "3f1c2a8e-0000-4000-8000-000000000001", ident.ID)
	assert.Equal(t, "ada@example.com", ident.Email)
	assert.Equal(t, "+2348000000000", ident.Phone)

	_, err = s.VerifyToken(context.Background(), "stale-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.VerifyToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestKratosStore_SignIn(t *testing.T) {
	f := newFakeKratos(t)
	s := f.store()

	sess, err := s.SignIn(context.Background(), "ada@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "good-token", sess.Token)
	assert.Equal(t, "ada@example.com", sess.Identity.Email)
	assert.False(t, sess.ExpiresAt.IsZero())

	_, err = s.SignIn(context.Background(), "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestKratosStore_IdentityAdmin(t *testing.T) {
	f := newFakeKratos(t)
	s := f.store()
	ctx := context.Background()

	exists, err := s.EmailExists(ctx, "taken@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "Bearer service-key", f.lastAuth.Load())

	exists, err = s.EmailExists(ctx, "free@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.CreateIdentity(ctx, NewIdentity{Email: "taken@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrIdentityExists)

	ident, err := s.CreateIdentity(ctx, NewIdentity{Email: "ada@example.com", Password: "pw", FullName: "Ada"})
	require.NoError(t, err)
	assert.NotEmpty(t, ident.ID)

	require.NoError(t, s.DeleteIdentity(ctx, ident.ID))
	assert.Equal(t, int32(1), f.deleted.Load())
}

func TestKratosStore_SignOutAndPing(t *testing.T) {
	f := newFakeKratos(t)
	s := f.store()

	require.NoError(t, s.SignOut(context.Background(), "good-token"))
	require.NoError(t, s.Ping(context.Background()))
}

func TestKratosStore_UnreachableIsUnavailable(t *testing.T) {
	f := newFakeKratos(t)
	s := f.store()
	f.server.Close()

	_, err := s.VerifyToken(context.Background(), "good-token")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

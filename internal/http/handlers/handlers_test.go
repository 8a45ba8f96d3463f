package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/bizhub/internal/accounts"
	"github.com/geocoder89/bizhub/internal/actorctx"
	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/geocoder89/bizhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

const knownID = "6f1c2f0e-8a1d-4a53-9c1e-2f1d8f6b0a11"

// stubService answers every call with err, or with a fixed projection.
type stubService struct {
	err       error
	projected profile.Projection
	gotID     string
	gotRole   string
}

func (s *stubService) Signup(context.Context, accounts.SignupInput) (profile.Projection, error) {
	return s.projected, s.err
}

func (s *stubService) Login(context.Context, string, string) (accounts.LoginResult, error) {
	return accounts.LoginResult{Token: "tok", User: s.projected}, s.err
}

func (s *stubService) Logout(context.Context, actorctx.Actor, string) error { return s.err }

func (s *stubService) Me(context.Context, actorctx.Actor) (profile.Projection, error) {
	return s.projected, s.err
}

func (s *stubService) PendingUsers(context.Context, actorctx.Actor) ([]profile.Projection, error) {
	return []profile.Projection{s.projected}, s.err
}

func (s *stubService) Approve(_ context.Context, _ actorctx.Actor, id string) (profile.Projection, error) {
	s.gotID = id
	return s.projected, s.err
}

func (s *stubService) Reject(_ context.Context, _ actorctx.Actor, id string) (profile.Projection, error) {
	s.gotID = id
	return s.projected, s.err
}

func (s *stubService) ListUsers(context.Context, actorctx.Actor) ([]profile.Projection, error) {
	return []profile.Projection{s.projected}, s.err
}

func (s *stubService) GetUser(_ context.Context, _ actorctx.Actor, id string) (profile.Projection, error) {
	s.gotID = id
	return s.projected, s.err
}

func (s *stubService) UpdateDetails(_ context.Context, _ actorctx.Actor, id string, _ profile.Changes) (profile.Projection, error) {
	s.gotID = id
	return s.projected, s.err
}

func (s *stubService) UpdateRole(_ context.Context, _ actorctx.Actor, id, role string) (profile.Projection, error) {
	s.gotID, s.gotRole = id, role
	return s.projected, s.err
}

func newTestRouter(svc *stubService, withActor bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handlers.RegisterValidators()

	r := gin.New()
	if withActor {
		r.Use(func(c *gin.Context) {
			a := actorctx.Actor{ID: "admin-1", Email: "boss@example.com", Role: profile.RoleAdmin}
			c.Request = c.Request.WithContext(actorctx.With(c.Request.Context(), a))
			c.Next()
		})
	}

	auth := handlers.NewAuthHandler(svc)
	users := handlers.NewUsersHandler(svc)

	r.POST("/signup", auth.SignUp)
	r.POST("/login", auth.Login)
	r.POST("/logout", auth.Logout)
	r.GET("/me", auth.Me)
	r.POST("/approve/:id", auth.ApproveUser)
	r.POST("/reject/:id", auth.RejectUser)
	r.GET("/users/:id", users.GetUser)
	r.PUT("/users/:id/role", users.UpdateRole)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode: %v body=%s", err, w.Body.String())
	}
	return e
}

func TestServiceErrorsMapToStatusAndCode(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"bad credentials", accounts.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"pending", &accounts.PendingApprovalError{Status: profile.StatusPending}, http.StatusForbidden, "pending_approval"},
		{"forbidden", accounts.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"self rejection", accounts.ErrSelfRejection, http.StatusForbidden, "forbidden"},
		{"email taken", accounts.ErrEmailTaken, http.StatusConflict, "email_taken"},
		{"transition", profile.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{"not found", accounts.ErrProfileNotFound, http.StatusNotFound, "not_found"},
		{"validation", fmt.Errorf("%w: nothing to update", accounts.ErrValidation), http.StatusBadRequest, "invalid_request"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&stubService{err: tc.err}, true)

			w := serve(r, http.MethodPost, "/reject/"+knownID, "")
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d body=%s", w.Code, tc.status, w.Body.String())
			}
			if got := decodeEnvelope(t, w).Error.Code; got != tc.code {
				t.Fatalf("code = %q, want %q", got, tc.code)
			}
		})
	}
}

func TestPendingApprovalDisclosure(t *testing.T) {
	body := `{"email":"a@x.com","password":"secret1"}`

	hidden := newTestRouter(&stubService{err: &accounts.PendingApprovalError{Status: profile.StatusRejected}}, false)
	w := serve(hidden, http.MethodPost, "/login", body)
	if e := decodeEnvelope(t, w); w.Code != http.StatusForbidden || e.Error.Details != nil {
		t.Fatalf("undisclosed: status=%d details=%v", w.Code, e.Error.Details)
	}

	shown := newTestRouter(&stubService{err: &accounts.PendingApprovalError{
		Status: profile.StatusRejected, IsActive: false, Disclose: true,
	}}, false)
	w = serve(shown, http.MethodPost, "/login", body)
	e := decodeEnvelope(t, w)
	if e.Error.Details["approval_status"] != "rejected" || e.Error.Details["is_active"] != false {
		t.Fatalf("disclosed details = %v", e.Error.Details)
	}
}

func TestProtectedHandlersWithoutActor(t *testing.T) {
	r := newTestRouter(&stubService{}, false)

	for _, path := range []string{"/me", "/users/" + knownID} {
		w := serve(r, http.MethodGet, path, "")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", path, w.Code)
		}
	}
}

func TestMalformedProfileID(t *testing.T) {
	svc := &stubService{}
	r := newTestRouter(svc, true)

	w := serve(r, http.MethodPost, "/approve/12345", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if svc.gotID != "" {
		t.Fatalf("service should not be called, got id %q", svc.gotID)
	}
}

func TestUpdateRolePassesRole(t *testing.T) {
	svc := &stubService{projected: profile.Projection{ID: knownID, Role: profile.RoleDesigners}}
	r := newTestRouter(svc, true)

	w := serve(r, http.MethodPut, "/users/"+knownID+"/role", `{"role":"designers"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if svc.gotID != knownID || svc.gotRole != "designers" {
		t.Fatalf("service got id=%q role=%q", svc.gotID, svc.gotRole)
	}
}

func TestSignupRespondsCreated(t *testing.T) {
	svc := &stubService{projected: profile.Projection{ID: knownID, Email: "a@x.com", ApprovalStatus: profile.StatusPending}}
	r := newTestRouter(svc, false)

	w := serve(r, http.MethodPost, "/signup", `{"email":"a@x.com","password":"secret1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var out struct {
		User    profile.Projection `json:"user"`
		Message string             `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.User.ApprovalStatus != profile.StatusPending || out.Message == "" {
		t.Fatalf("unexpected body %+v", out)
	}
}

func TestLogoutNoContent(t *testing.T) {
	r := newTestRouter(&stubService{}, true)

	w := serve(r, http.MethodPost, "/logout", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestGetUserETag(t *testing.T) {
	r := newTestRouter(&stubService{projected: profile.Projection{ID: knownID, Email: "a@x.com"}}, true)

	w := serve(r, http.MethodGet, "/users/"+knownID, "")
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("status=%d etag=%q", w.Code, etag)
	}

	req := httptest.NewRequest(http.MethodGet, "/users/"+knownID, nil)
	req.Header.Set("If-None-Match", "W/"+etag)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("status = %d, want 304", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("304 must not carry a body")
	}
}

package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/bizhub/internal/actorctx"
	"github.com/geocoder89/bizhub/internal/cache"
	"github.com/geocoder89/bizhub/internal/credentials"
	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/geocoder89/bizhub/internal/notifications"
	"github.com/geocoder89/bizhub/internal/repo/postgres"
)

type fakeProfiles struct {
	mu        sync.Mutex
	rows      map[string]profile.Profile
	getCalls  int
	insertErr error

	// beforeApply runs ahead of ApplyApproval to interleave a competing write
	beforeApply func()
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{rows: map[string]profile.Profile{}}
}

func (f *fakeProfiles) put(p profile.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[p.ID] = p
}

func (f *fakeProfiles) get(id string) profile.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

func (f *fakeProfiles) GetByID(_ context.Context, id string) (profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	p, ok := f.rows[id]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfiles) EmailExists(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.rows {
		if strings.EqualFold(p.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeProfiles) Insert(_ context.Context, p profile.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, row := range f.rows {
		if strings.EqualFold(row.Email, p.Email) {
			return postgres.ErrProfileEmailTaken
		}
	}
	f.rows[p.ID] = p
	return nil
}

func (f *fakeProfiles) list(keep func(profile.Profile) bool) []profile.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]profile.Profile, 0, len(f.rows))
	for _, p := range f.rows {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeProfiles) ListPending(context.Context) ([]profile.Profile, error) {
	return f.list(func(p profile.Profile) bool {
		return p.EffectiveStatus() == profile.StatusPending
	}), nil
}

func (f *fakeProfiles) ListAll(context.Context) ([]profile.Profile, error) {
	return f.list(func(profile.Profile) bool { return true }), nil
}

func (f *fakeProfiles) update(id string, fn func(*profile.Profile)) (profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	fn(&p)
	f.rows[id] = p
	return p, nil
}

func (f *fakeProfiles) ApplyApproval(_ context.Context, id string, t profile.Transition, by string, at time.Time) (profile.Profile, error) {
	if hook := f.beforeApply; hook != nil {
		f.beforeApply = nil
		hook()
	}

	f.mu.Lock()
	current, ok := f.rows[id]
	f.mu.Unlock()
	if !ok || !t.AppliesTo(current) {
		return profile.Profile{}, profile.ErrStateChanged
	}

	return f.update(id, func(p *profile.Profile) {
		to := t.To
		p.ApprovalStatus = &to
		p.IsActive = t.Active
		if to == profile.StatusApproved {
			p.ApprovedBy = &by
			p.ApprovedAt = &at
		}
		p.UpdatedAt = at
	})
}

func (f *fakeProfiles) UpdateRole(_ context.Context, id string, role profile.Role, at time.Time) (profile.Profile, error) {
	return f.update(id, func(p *profile.Profile) {
		p.Role = role
		p.UpdatedAt = at
	})
}

func (f *fakeProfiles) UpdateDetails(_ context.Context, id string, ch profile.Changes, at time.Time) (profile.Profile, error) {
	return f.update(id, func(p *profile.Profile) {
		if ch.FullName != nil {
			p.FullName = *ch.FullName
		}
		if ch.Phone != nil {
			p.Phone = *ch.Phone
		}
		p.UpdatedAt = at
	})
}

func (f *fakeProfiles) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	_, err := f.update(id, func(p *profile.Profile) { p.LastLoginAt = &at })
	return err
}

type fakeIdentity struct {
	id       string
	password string
}

type fakeCreds struct {
	mu         sync.Mutex
	byEmail    map[string]fakeIdentity
	tokens     map[string]string
	seq        int
	created    int
	deleted    []string
	signedOut  []string
	existsHits int
	deleteErr  error
}

func newFakeCreds() *fakeCreds {
	return &fakeCreds{byEmail: map[string]fakeIdentity{}, tokens: map[string]string{}}
}

func (f *fakeCreds) SignIn(_ context.Context, email, password string) (credentials.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.byEmail[email]
	if !ok || ident.password != password {
		return credentials.Session{}, credentials.ErrInvalidCredentials
	}
	f.seq++
	tok := fmt.Sprintf("tok-%d", f.seq)
	f.tokens[tok] = ident.id
	return credentials.Session{
		Token:     tok,
		ExpiresAt: time.Now().Add(time.Hour),
		Identity:  credentials.Identity{ID: ident.id, Email: email},
	}, nil
}

func (f *fakeCreds) VerifyToken(_ context.Context, token string) (credentials.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[token]
	if !ok {
		return credentials.Identity{}, credentials.ErrInvalidToken
	}
	return credentials.Identity{ID: id}, nil
}

func (f *fakeCreds) SignOut(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, token)
	f.signedOut = append(f.signedOut, token)
	return nil
}

func (f *fakeCreds) EmailExists(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsHits++
	_, ok := f.byEmail[email]
	return ok, nil
}

func (f *fakeCreds) CreateIdentity(_ context.Context, in credentials.NewIdentity) (credentials.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[in.Email]; ok {
		return credentials.Identity{}, credentials.ErrIdentityExists
	}
	f.seq++
	id := fmt.Sprintf("id-%d", f.seq)
	f.byEmail[in.Email] = fakeIdentity{id: id, password: in.Password}
	f.created++
	return credentials.Identity{ID: id, Email: in.Email}, nil
}

func (f *fakeCreds) DeleteIdentity(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for email, ident := range f.byEmail {
		if ident.id == id {
			delete(f.byEmail, email)
			return nil
		}
	}
	return credentials.ErrIdentityNotFound
}

func (f *fakeCreds) Ping(context.Context) error { return nil }

func (f *fakeCreds) activeTokens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

type recordingNotifier struct {
	mu        sync.Mutex
	signups   []notifications.SignupReceivedInput
	decisions []notifications.DecisionMadeInput
}

func (n *recordingNotifier) SignupReceived(_ context.Context, in notifications.SignupReceivedInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signups = append(n.signups, in)
	return nil
}

func (n *recordingNotifier) DecisionMade(_ context.Context, in notifications.DecisionMadeInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decisions = append(n.decisions, in)
	return nil
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.signups), len(n.decisions)
}

var errRepoDown = errors.New("repository unavailable")

type harness struct {
	svc      *Service
	profiles *fakeProfiles
	creds    *fakeCreds
	store    *cache.MemoryStore
	notifier *recordingNotifier
	admin    actorctx.Actor
}

func newHarness(opts ...Option) *harness {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		profiles: newFakeProfiles(),
		creds:    newFakeCreds(),
		store:    cache.NewMemoryStore(),
		notifier: &recordingNotifier{},
	}

	sc := cache.NewSessionCache(h.store, log)
	opts = append([]Option{WithLogger(log), WithNotifier(h.notifier)}, opts...)
	h.svc = NewService(h.profiles, h.creds, sc, opts...)

	approved := profile.StatusApproved
	h.profiles.put(profile.Profile{
		ID:             "admin-1",
		Email:          "boss@example.com",
		FullName:       "Boss",
		Role:           profile.RoleAdmin,
		IsActive:       true,
		ApprovalStatus: &approved,
	})
	h.admin = actorctx.Actor{ID: "admin-1", Email: "boss@example.com", Role: profile.RoleAdmin}
	return h
}

// Package accounts implements signup, login and the admin approval workflow on
// top of the credential store, the profile repository and the session cache.
package accounts

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/bizhub/internal/credentials"
	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/geocoder89/bizhub/internal/notifications"
	"github.com/geocoder89/bizhub/internal/observability"
	"golang.org/x/sync/singleflight"
)

type ProfileRepo interface {
	GetByID(ctx context.Context, id string) (profile.Profile, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, p profile.Profile) error
	ListPending(ctx context.Context) ([]profile.Profile, error)
	ListAll(ctx context.Context) ([]profile.Profile, error)
	ApplyApproval(ctx context.Context, id string, t profile.Transition, approvedBy string, at time.Time) (profile.Profile, error)
	UpdateRole(ctx context.Context, id string, role profile.Role, at time.Time) (profile.Profile, error)
	UpdateDetails(ctx context.Context, id string, ch profile.Changes, at time.Time) (profile.Profile, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

type ProfileCache interface {
	GetUser(ctx context.Context, id string) (profile.Projection, bool)
	SetUser(ctx context.Context, p profile.Projection)
	ForgetUser(ctx context.Context, id string)
	GetList(ctx context.Context, key string) ([]profile.Projection, bool)
	SetList(ctx context.Context, key string, items []profile.Projection)
	InvalidateUser(ctx context.Context, id string)
	InvalidateLists(ctx context.Context)
}

const compensationTimeout = 5 * time.Second

type Service struct {
	profiles ProfileRepo
	creds    credentials.Store
	cache    ProfileCache
	notifier notifications.Notifier
	prom     *observability.Prom
	log      *slog.Logger

	discloseApproval bool
	now              func() time.Time

	meGroup singleflight.Group
}

type Option func(*Service)

func WithNotifier(n notifications.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(p *observability.Prom) Option {
	return func(s *Service) { s.prom = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithApprovalDisclosure toggles whether a blocked login reveals approval_status and is_active.
func WithApprovalDisclosure(on bool) Option {
	return func(s *Service) { s.discloseApproval = on }
}

func NewService(profiles ProfileRepo, creds credentials.Store, cache ProfileCache, opts ...Option) *Service {
	s := &Service{
		profiles:         profiles,
		creds:            creds,
		cache:            cache,
		log:              slog.Default(),
		discloseApproval: true,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "accounts")
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// Ping reports credential store reachability for readiness checks.
func (s *Service) Ping(ctx context.Context) error {
	return s.creds.Ping(ctx)
}

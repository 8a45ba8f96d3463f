package credentials

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	kratos "github.com/ory/kratos-client-go"
)

type KratosConfig struct {
	PublicURL  string
	PublicKey  string
	AdminURL   string
	ServiceKey string
	SchemaID   string
	Timeout    time.Duration
}

// KratosStore implements Store on top of an Ory Kratos deployment. The public
// API handles native login/logout and token introspection; the admin API,
// authenticated with the service key, manages identities.
type KratosStore struct {
	public   *kratos.APIClient
	admin    *kratos.APIClient
	schemaID string
}

func NewKratosStore(cfg KratosConfig) *KratosStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.SchemaID == "" {
		cfg.SchemaID = "default"
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{Timeout: cfg.Timeout, Transport: transport}

	return &KratosStore{
		public:   newKratosClient(cfg.PublicURL, cfg.PublicKey, httpClient),
		admin:    newKratosClient(cfg.AdminURL, cfg.ServiceKey, httpClient),
		schemaID: cfg.SchemaID,
	}
}

func newKratosClient(baseURL, key string, httpClient *http.Client) *kratos.APIClient {
	configuration := kratos.NewConfiguration()
	configuration.Servers = []kratos.ServerConfiguration{
		{URL: strings.TrimRight(baseURL, "/")},
	}
	configuration.HTTPClient = httpClient
	configuration.AddDefaultHeader("Accept", "application/json")
	if key != "" {
		configuration.AddDefaultHeader("Authorization", "Bearer "+key)
	}
	return kratos.NewAPIClient(configuration)
}

func (s *KratosStore) SignIn(ctx context.Context, email, password string) (Session, error) {
	flow, resp, err := s.public.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return Session{}, unavailable("create login flow", resp, err)
	}

	body := kratos.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: email,
		Password:   password,
	}

	result, resp, err := s.public.FrontendAPI.
		UpdateLoginFlow(ctx).
		Flow(flow.Id).
		UpdateLoginFlowBody(kratos.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&body)).
		Execute()
	if err != nil {
		// kratos answers bad credentials with 400 on the flow
		if resp != nil && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, unavailable("submit login flow", resp, err)
	}

	if result.SessionToken == nil || *result.SessionToken == "" {
		return Session{}, fmt.Errorf("%w: login returned no session token", ErrUnavailable)
	}

	out := Session{Token: *result.SessionToken}
	if result.Session.ExpiresAt != nil {
		out.ExpiresAt = *result.Session.ExpiresAt
	}
	if result.Session.Identity != nil {
		out.Identity = identityFromKratos(*result.Session.Identity)
	}
	return out, nil
}

func (s *KratosStore) VerifyToken(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	session, resp, err := s.public.FrontendAPI.ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, unavailable("whoami", resp, err)
	}

	if session.Active != nil && !*session.Active {
		return Identity{}, ErrInvalidToken
	}
	if session.Identity == nil {
		return Identity{}, ErrInvalidToken
	}

	return identityFromKratos(*session.Identity), nil
}

func (s *KratosStore) SignOut(ctx context.Context, token string) error {
	resp, err := s.public.FrontendAPI.
		PerformNativeLogout(ctx).
		PerformNativeLogoutBody(*kratos.NewPerformNativeLogoutBody(token)).
		Execute()
	if err != nil {
		// an already-invalid token has nothing left to revoke
		if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized) {
			return nil
		}
		return unavailable("logout", resp, err)
	}
	return nil
}

func (s *KratosStore) EmailExists(ctx context.Context, email string) (bool, error) {
	identities, resp, err := s.admin.IdentityAPI.
		ListIdentities(ctx).
		CredentialsIdentifier(email).
		Execute()
	if err != nil {
		return false, unavailable("list identities", resp, err)
	}

	for _, ident := range identities {
		if strings.EqualFold(traitString(ident.Traits, "email"), email) {
			return true, nil
		}
	}
	// the credentials identifier filter is exact, so any hit counts
	return len(identities) > 0, nil
}

func (s *KratosStore) CreateIdentity(ctx context.Context, in NewIdentity) (Identity, error) {
	traits := map[string]interface{}{
		"email": in.Email,
	}
	if in.FullName != "" {
		traits["name"] = in.FullName
	}
	if in.Phone != "" {
		traits["phone"] = in.Phone
	}

	state := "active"
	password := in.Password

	body := kratos.CreateIdentityBody{
		SchemaId: s.schemaID,
		Traits:   traits,
		State:    &state,
		Credentials: &kratos.IdentityWithCredentials{
			Password: &kratos.IdentityWithCredentialsPassword{
				Config: &kratos.IdentityWithCredentialsPasswordConfig{
					Password: &password,
				},
			},
		},
	}

	created, resp, err := s.admin.IdentityAPI.CreateIdentity(ctx).CreateIdentityBody(body).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return Identity{}, ErrIdentityExists
		}
		return Identity{}, unavailable("create identity", resp, err)
	}

	return identityFromKratos(*created), nil
}

func (s *KratosStore) DeleteIdentity(ctx context.Context, id string) error {
	resp, err := s.admin.IdentityAPI.DeleteIdentity(ctx, id).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return ErrIdentityNotFound
		}
		return unavailable("delete identity", resp, err)
	}
	return nil
}

func (s *KratosStore) Ping(ctx context.Context) error {
	_, resp, err := s.public.MetadataAPI.GetVersion(ctx).Execute()
	if err != nil {
		return unavailable("public version", resp, err)
	}
	_, resp, err = s.admin.MetadataAPI.GetVersion(ctx).Execute()
	if err != nil {
		return unavailable("admin version", resp, err)
	}
	return nil
}

func identityFromKratos(ident kratos.Identity) Identity {
	return Identity{
		ID:    ident.Id,
		Email: traitString(ident.Traits, "email"),
		Phone: traitString(ident.Traits, "phone"),
	}
}

func traitString(traits interface{}, key string) string {
	m, ok := traits.(map[string]interface{})
	if !ok {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

func unavailable(op string, resp *http.Response, err error) error {
	if resp != nil {
		return fmt.Errorf("%w: %s: status %d: %w", ErrUnavailable, op, resp.StatusCode, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

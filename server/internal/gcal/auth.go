package gcal

import (
	"context"

	"github.com/pkg/errors"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Identity is the account behind an authorization code.
type Identity struct {
	GoogleID string
	Email    string
}

// Authenticator runs the authorization code flow for offline calendar access.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, *Identity, error)
}

type googleAuthenticator struct {
	config *oauth2.Config
	opts   []option.ClientOption
}

// NewAuthenticator wraps config. opts are applied to the userinfo lookup.
func NewAuthenticator(config *oauth2.Config, opts ...option.ClientOption) Authenticator {
	return &googleAuthenticator{config: config, opts: opts}
}

func (a *googleAuthenticator) AuthCodeURL(state string) string {
	// force the consent screen so a refresh token is always issued
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (a *googleAuthenticator) Exchange(ctx context.Context, code string) (*oauth2.Token, *Identity, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, nil, errors.Wrapf(models.ErrAuth, "code exchange failed: %v", err)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(a.config.Client(ctx, token))}, a.opts...)
	srv, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create userinfo service")
	}
	info, err := srv.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, nil, errors.Wrapf(models.ErrProvider, "userinfo lookup failed: %v", err)
	}
	if info.Id == "" || info.Email == "" {
		return nil, nil, errors.Wrap(models.ErrAuth, "userinfo response has no id or email")
	}
	return token, &Identity{GoogleID: info.Id, Email: info.Email}, nil
}

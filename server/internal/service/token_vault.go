package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/helper"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// TokenRefresher exchanges a refresh token for a fresh access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

type oauthRefresher struct {
	config *oauth2.Config
}

func NewOAuthRefresher(config *oauth2.Config) TokenRefresher {
	return &oauthRefresher{config: config}
}

func (r *oauthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

// TokenVault owns the stored OAuth credential of every user.
type TokenVault interface {
	// Credential returns the stored access token, refreshing it first when it has expired
	// and a refresh token is available.
	Credential(ctx context.Context, userID uint) (*oauth2.Token, error)
	// Refresh always exchanges the refresh token and persists the result.
	Refresh(ctx context.Context, userID uint) (*oauth2.Token, error)
	// TokenSource reads through the vault on every call, so clients built on it pick up refreshes.
	TokenSource(ctx context.Context, userID uint) oauth2.TokenSource
}

type tokenVault struct {
	userRepo  repository.UserRepository
	refresher TokenRefresher
	secret    string
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewTokenVault(userRepo repository.UserRepository, refresher TokenRefresher, secret string, logger *zap.SugaredLogger) TokenVault {
	return &tokenVault{
		userRepo:  userRepo,
		refresher: refresher,
		secret:    secret,
		logger:    logger,
		now:       time.Now,
	}
}

func (v *tokenVault) Credential(ctx context.Context, userID uint) (*oauth2.Token, error) {
	user, accessToken, refreshToken, err := v.load(userID)
	if err != nil {
		return nil, err
	}

	if user.TokenExpired(v.now()) && refreshToken != "" {
		return v.refresh(ctx, user, refreshToken)
	}
	if accessToken == "" {
		return nil, errors.Wrapf(models.ErrAuth, "user %d has no access token", userID)
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}
	if user.TokenExpiresAt != nil {
		token.Expiry = *user.TokenExpiresAt
	}
	return token, nil
}

func (v *tokenVault) Refresh(ctx context.Context, userID uint) (*oauth2.Token, error) {
	user, _, refreshToken, err := v.load(userID)
	if err != nil {
		return nil, err
	}
	return v.refresh(ctx, user, refreshToken)
}

func (v *tokenVault) TokenSource(ctx context.Context, userID uint) oauth2.TokenSource {
	return &vaultTokenSource{ctx: ctx, vault: v, userID: userID}
}

func (v *tokenVault) load(userID uint) (*dbmodel.Users, string, string, error) {
	user, err := v.userRepo.FindByID(userID)
	if err != nil {
		return nil, "", "", errors.Wrap(err, "failed to find user")
	}
	if user == nil {
		return nil, "", "", errors.Wrapf(models.ErrNotFound, "user %d", userID)
	}

	accessToken, err := helper.Decrypt(user.AccessToken, v.secret)
	if err != nil {
		v.logger.Errorw("error when decrypt access token", "user_id", userID, "err", err.Error())
		return nil, "", "", errors.Wrapf(models.ErrAuth, "unreadable access token for user %d", userID)
	}
	refreshToken, err := helper.Decrypt(user.RefreshToken, v.secret)
	if err != nil {
		v.logger.Errorw("error when decrypt refresh token", "user_id", userID, "err", err.Error())
		return nil, "", "", errors.Wrapf(models.ErrAuth, "unreadable refresh token for user %d", userID)
	}
	return user, accessToken, refreshToken, nil
}

// refresh persists only the credential columns. Two concurrent refreshes for one user both
// write a valid token and the later write wins.
func (v *tokenVault) refresh(ctx context.Context, user *dbmodel.Users, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.Wrapf(models.ErrAuth, "user %d has no refresh token", user.ID)
	}

	token, err := v.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		v.logger.Warnw("token refresh rejected", "user_id", user.ID, "err", err.Error())
		return nil, refreshRejectedError{errors.Wrapf(models.ErrAuth, "refresh rejected for user %d: %v", user.ID, err)}
	}

	encryptedAccess, err := helper.Encrypt(token.AccessToken, v.secret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt access token")
	}
	var encryptedRefresh string
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		if encryptedRefresh, err = helper.Encrypt(token.RefreshToken, v.secret); err != nil {
			return nil, errors.Wrap(err, "failed to encrypt refresh token")
		}
	}
	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		expiresAt = &expiry
	}

	if err := v.userRepo.UpdateTokens(user.ID, encryptedAccess, encryptedRefresh, expiresAt); err != nil {
		v.logger.Errorw("error when persist refreshed token", "user_id", user.ID, "err", err.Error())
		return nil, errors.Wrap(err, "failed to persist refreshed token")
	}

	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	v.logger.Infow("refreshed access token", "user_id", user.ID, "expires_at", token.Expiry)
	return token, nil
}

type vaultTokenSource struct {
	ctx    context.Context
	vault  *tokenVault
	userID uint
}

func (s *vaultTokenSource) Token() (*oauth2.Token, error) {
	return s.vault.Credential(s.ctx, s.userID)
}

// refreshRejectedError marks an ErrAuth that came from the vault's own refresh, so callers
// do not try the same refresh token again.
type refreshRejectedError struct {
	error
}

func (e refreshRejectedError) Unwrap() error {
	return e.error
}

func isRefreshRejected(err error) bool {
	var rejected refreshRejectedError
	return errors.As(err, &rejected)
}

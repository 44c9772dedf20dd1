package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"scribex-api/internal/event"
	"scribex-api/internal/model"
	"scribex-api/pkg/apierror"
)

const loginFailedMessage = "incorrect username or password"

// ResetNotifier delivers a password reset token to the account owner.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, account model.Account, token string, expiresAt time.Time) error
}

// LogResetNotifier only logs. The raw token is written at debug level so
// local development can complete the flow.
type LogResetNotifier struct{}

func (LogResetNotifier) NotifyPasswordReset(ctx context.Context, account model.Account, token string, expiresAt time.Time) error {
	slog.InfoContext(ctx, "password reset requested", "account_id", account.ID, "expires_at", expiresAt)
	slog.DebugContext(ctx, "password reset token issued", "account_id", account.ID, "reset_token", token)
	return nil
}

type AuthService struct {
	accounts *AccountService
	tokens   *TokenService
	notifier ResetNotifier
	bus      event.Bus
	onLogin  func(success bool)
}

func NewAuthService(accounts *AccountService, tokens *TokenService, notifier ResetNotifier, bus event.Bus) *AuthService {
	if notifier == nil {
		notifier = LogResetNotifier{}
	}
	return &AuthService{accounts: accounts, tokens: tokens, notifier: notifier, bus: bus}
}

// OnLogin registers a callback run after every login attempt.
func (s *AuthService) OnLogin(fn func(success bool)) {
	s.onLogin = fn
}

func (s *AuthService) Login(ctx context.Context, login string, password string) (model.TokenPair, error) {
	account, ok, err := s.accounts.Authenticate(ctx, login, password)
	if err != nil {
		return model.TokenPair{}, err
	}
	if s.onLogin != nil {
		s.onLogin(ok)
	}
	if !ok {
		s.publish(ctx, event.TypeLoginFailed, "", "", map[string]any{"login": login})
		return model.TokenPair{}, apierror.Unauthenticated(loginFailedMessage)
	}

	pair, err := s.tokens.IssuePair(account.ID)
	if err != nil {
		return model.TokenPair{}, err
	}

	s.publish(ctx, event.TypeLogin, account.ID, account.ID, nil)
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented refresh
// token is consumed so it can be used only once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	accountID, err := s.tokens.Consume(ctx, refreshToken, model.TokenRefresh)
	if err != nil {
		return model.TokenPair{}, credentialsError(err)
	}

	if _, err := s.accounts.Principal(ctx, accountID); err != nil {
		return model.TokenPair{}, credentialsError(err)
	}

	pair, err := s.tokens.IssuePair(accountID)
	if err != nil {
		return model.TokenPair{}, err
	}

	s.publish(ctx, event.TypeTokenRefreshed, accountID, accountID, nil)
	return pair, nil
}

// Logout revokes the access token and, when given, the refresh token.
func (s *AuthService) Logout(ctx context.Context, accessToken string, refreshToken string) error {
	accountID, err := s.tokens.Verify(ctx, accessToken, model.TokenAccess)
	if err != nil {
		return credentialsError(err)
	}

	if err := s.tokens.Revoke(ctx, accessToken); err != nil {
		return credentialsError(err)
	}

	if refreshToken != "" {
		owner, err := s.tokens.Verify(ctx, refreshToken, model.TokenRefresh)
		if err == nil && owner == accountID {
			if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
				return credentialsError(err)
			}
		}
	}

	s.publish(ctx, event.TypeLogout, accountID, accountID, nil)
	return nil
}

// Principal authenticates an access token and loads the caller.
func (s *AuthService) Principal(ctx context.Context, accessToken string) (*model.Principal, error) {
	accountID, err := s.tokens.Verify(ctx, accessToken, model.TokenAccess)
	if err != nil {
		return nil, credentialsError(err)
	}

	principal, err := s.accounts.Principal(ctx, accountID)
	if err != nil {
		return nil, credentialsError(err)
	}
	return principal, nil
}

// RequestPasswordReset never reports whether the email is registered.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if err := model.Validate(model.PasswordResetRequest{Email: email}); err != nil {
		return validationError(err)
	}

	account, active, err := s.accounts.FindActiveByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !active {
		return nil
	}

	token, expiresAt, err := s.tokens.IssueReset(account.ID)
	if err != nil {
		return err
	}

	if err := s.notifier.NotifyPasswordReset(ctx, account, token, expiresAt); err != nil {
		slog.ErrorContext(ctx, "password reset notification failed", "account_id", account.ID, "error", err)
	}
	return nil
}

// ConfirmPasswordReset sets a new password. The reset token is single use.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token string, newPassword string) error {
	if err := model.Validate(model.PasswordResetConfirmRequest{Token: token, NewPassword: newPassword}); err != nil {
		return validationError(err)
	}

	accountID, err := s.tokens.Consume(ctx, token, model.TokenReset)
	if err != nil {
		return credentialsError(err)
	}
	if _, err := s.accounts.Principal(ctx, accountID); err != nil {
		return credentialsError(err)
	}

	if err := s.accounts.SetPassword(ctx, accountID, newPassword); err != nil {
		return err
	}

	s.publish(ctx, event.TypePasswordReset, accountID, accountID, nil)
	return nil
}

func (s *AuthService) publish(ctx context.Context, typ event.Type, actorID string, subjectID string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.New(ctx, typ, actorID, subjectID, payload))
}

// credentialsError hides which token check failed. Infrastructure errors are
// passed through so they surface as 500.
func credentialsError(err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidToken),
		errors.Is(err, model.ErrUnauthenticated),
		errors.Is(err, model.ErrAccountInactive),
		errors.Is(err, model.ErrAccountNotFound):
		return apierror.Unauthenticated("")
	default:
		return err
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"scribex-api/internal/model"
)

// RevocationStore records token ids invalidated before their natural expiry.
// Claim adds the id only when it is not already recorded and reports whether
// this call added it.
type RevocationStore interface {
	Add(ctx context.Context, tokenID string, expiresAt time.Time) error
	Claim(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error)
	Contains(ctx context.Context, tokenID string) (bool, error)
	Prune(ctx context.Context) (int64, error)
}

type tokenClaims struct {
	Class model.TokenClass `json:"typ"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	revoked    RevocationStore
	now        func() time.Time
	onRevoke   func()
}

func NewTokenService(secret string, issuer string, accessTTL time.Duration, refreshTTL time.Duration, resetTTL time.Duration, revoked RevocationStore) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
		revoked:    revoked,
		now:        time.Now,
	}
}

// OnRevoke registers a callback run after every successful revocation.
func (s *TokenService) OnRevoke(fn func()) {
	s.onRevoke = fn
}

func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *TokenService) IssueAccess(accountID string) (string, time.Time, error) {
	return s.issue(accountID, model.TokenAccess, s.accessTTL)
}

func (s *TokenService) IssueRefresh(accountID string) (string, time.Time, error) {
	return s.issue(accountID, model.TokenRefresh, s.refreshTTL)
}

func (s *TokenService) IssueReset(accountID string) (string, time.Time, error) {
	return s.issue(accountID, model.TokenReset, s.resetTTL)
}

func (s *TokenService) IssuePair(accountID string) (model.TokenPair, error) {
	accessToken, _, err := s.IssueAccess(accountID)
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshToken, _, err := s.IssueRefresh(accountID)
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *TokenService) issue(accountID string, class model.TokenClass, ttl time.Duration) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	claims := tokenClaims{
		Class: class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", class, err)
	}

	return signed, expiresAt, nil
}

// Verify returns the account id the token was issued to. Every failure mode
// collapses into model.ErrInvalidToken, except revocation store outages.
func (s *TokenService) Verify(ctx context.Context, token string, class model.TokenClass) (string, error) {
	claims, err := s.classClaims(ctx, token, class)
	if err != nil {
		return "", err
	}
	return claims.AccountID, nil
}

// Consume verifies a single use token and spends it. When the same token is
// presented concurrently only one caller gets the account id back.
func (s *TokenService) Consume(ctx context.Context, token string, class model.TokenClass) (string, error) {
	claims, err := s.classClaims(ctx, token, class)
	if err != nil {
		return "", err
	}

	claimed, err := s.revoked.Claim(ctx, claims.TokenID, claims.ExpiresAt)
	if err != nil {
		return "", fmt.Errorf("consume token: %w", err)
	}
	if !claimed {
		return "", fmt.Errorf("%w: token already used", model.ErrInvalidToken)
	}
	if s.onRevoke != nil {
		s.onRevoke()
	}
	return claims.AccountID, nil
}

func (s *TokenService) classClaims(ctx context.Context, token string, class model.TokenClass) (model.TokenClaims, error) {
	claims, err := s.Claims(ctx, token)
	if err != nil {
		return model.TokenClaims{}, err
	}
	if claims.Class != class {
		return model.TokenClaims{}, fmt.Errorf("%w: expected %s token, got %q", model.ErrInvalidToken, class, claims.Class)
	}
	return claims, nil
}

// Claims verifies signature, expiry and revocation of a token of any class.
func (s *TokenService) Claims(ctx context.Context, token string) (model.TokenClaims, error) {
	parsed, err := s.parse(token)
	if err != nil {
		return model.TokenClaims{}, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}

	revoked, err := s.revoked.Contains(ctx, parsed.TokenID)
	if err != nil {
		return model.TokenClaims{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return model.TokenClaims{}, fmt.Errorf("%w: token revoked", model.ErrInvalidToken)
	}

	return parsed, nil
}

// Revoke invalidates the token until its natural expiry. Revoking an expired
// token is a no-op.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	parsed, err := s.parse(token)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}

	if err := s.revoked.Add(ctx, parsed.TokenID, parsed.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if s.onRevoke != nil {
		s.onRevoke()
	}
	return nil
}

func (s *TokenService) Prune(ctx context.Context) (int64, error) {
	return s.revoked.Prune(ctx)
}

// StartPruneTicker sweeps expired revocations until ctx is cancelled.
func (s *TokenService) StartPruneTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Prune(ctx)
				if err != nil {
					slog.Error("revocation prune failed", "error", err)
					continue
				}
				if removed > 0 {
					slog.Info("revocation prune finished", "removed", removed)
				}
			}
		}
	}()
}

func (s *TokenService) parse(token string) (model.TokenClaims, error) {
	claims := &tokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)

	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return model.TokenClaims{}, err
	}

	if claims.Subject == "" || claims.ID == "" {
		return model.TokenClaims{}, errors.New("token is missing subject or id")
	}

	return model.TokenClaims{
		AccountID: claims.Subject,
		Class:     claims.Class,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

package service

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scribex-api/internal/model"
	"scribex-api/internal/repository"
	"scribex-api/pkg/apierror"
)

type captureNotifier struct {
	account model.Account
	token   string
}

func (n *captureNotifier) NotifyPasswordReset(_ context.Context, account model.Account, token string, _ time.Time) error {
	n.account = account
	n.token = token
	return nil
}

type authFixture struct {
	auth     *AuthService
	tokens   *TokenService
	accounts *AccountService
	store    *repository.MockAccountRepository
	notifier *captureNotifier
	student  model.AccountWithProfile
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()

	accounts, store := newAccountService(false)
	tokens := newTestTokenService()
	notifier := &captureNotifier{}

	student := studentAccount(t, accounts, "p")
	store.On("FindByUsername", mock.Anything, "s1").Return(student.Account, nil).Maybe()
	store.On("FindWithProfile", mock.Anything, student.ID).Return(student, nil).Maybe()

	return authFixture{
		auth:     NewAuthService(accounts, tokens, notifier, nil),
		tokens:   tokens,
		accounts: accounts,
		store:    store,
		notifier: notifier,
		student:  student,
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)

	var outcomes []bool
	f.auth.OnLogin(func(success bool) { outcomes = append(outcomes, success) })

	pair, err := f.auth.Login(ctx, "s1", "p")
	require.NoError(t, err)
	assert.Equal(t, "bearer", pair.TokenType)

	accountID, err := f.tokens.Verify(ctx, pair.AccessToken, model.TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, f.student.ID, accountID)

	_, err = f.auth.Login(ctx, "s1", "wrong")
	apiErr := requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthenticated)
	assert.Equal(t, "incorrect username or password", apiErr.Message)

	assert.Equal(t, []bool{true, false}, outcomes)
}

func TestPrincipal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)

	access, _, err := f.tokens.IssueAccess(f.student.ID)
	require.NoError(t, err)

	principal, err := f.auth.Principal(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, f.student.ID, principal.AccountID)
	assert.Equal(t, model.RoleStudent, principal.Role)

	refresh, _, err := f.tokens.IssueRefresh(f.student.ID)
	require.NoError(t, err)

	_, err = f.auth.Principal(ctx, refresh)
	apiErr := requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthenticated)
	assert.Equal(t, apierror.CredentialsMessage, apiErr.Message)
}

func TestPrincipalRejectsInactiveAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	accounts, store := newAccountService(false)
	tokens := newTestTokenService()
	auth := NewAuthService(accounts, tokens, nil, nil)

	inactive := studentAccount(t, accounts, "p")
	inactive.IsActive = false
	store.On("FindWithProfile", ctx, inactive.ID).Return(inactive, nil)

	access, _, err := tokens.IssueAccess(inactive.ID)
	require.NoError(t, err)

	_, err = auth.Principal(ctx, access)
	requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthenticated)
}

func TestLogoutRevokesTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)

	pair, err := f.auth.Login(ctx, "s1", "p")
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, pair.AccessToken, pair.RefreshToken))

	_, err = f.auth.Principal(ctx, pair.AccessToken)
	requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthenticated)

	_, err = f.auth.Refresh(ctx, pair.RefreshToken)
	requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthenticated)

	err = f.auth.Logout(ctx, pair.AccessToken, "")
	requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthenticated)
}

func TestRefreshRotates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)

	pair, err := f.auth.Login(ctx, "s1", "p")
	require.NoError(t, err)

	next, err := f.auth.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	accountID, err := f.tokens.Verify(ctx, next.AccessToken, model.TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, f.student.ID, accountID)

	_, err = f.auth.Refresh(ctx, pair.RefreshToken)
	requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthenticated)

	_, err = f.auth.Refresh(ctx, next.AccessToken)
	requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthenticated)
}

func TestRefreshConcurrentRotation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)

	pair, err := f.auth.Login(ctx, "s1", "p")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		rotated  []model.TokenPair
		rejected int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := f.auth.Refresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rejected++
				return
			}
			rotated = append(rotated, next)
		}()
	}
	wg.Wait()

	require.Len(t, rotated, 1, "only one rotation may win")
	assert.Equal(t, 9, rejected)
}

func TestPasswordReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)
	f.store.On("FindByEmail", ctx, "s1@school.edu").Return(f.student.Account, nil)
	f.store.On("FindByEmail", ctx, "ghost@school.edu").Return(model.Account{}, model.ErrAccountNotFound)
	f.store.On("UpdatePassword", ctx, f.student.ID, mock.AnythingOfType("string")).Return(nil).Once()

	require.NoError(t, f.auth.RequestPasswordReset(ctx, "ghost@school.edu"))
	assert.Empty(t, f.notifier.token)

	require.NoError(t, f.auth.RequestPasswordReset(ctx, "S1@school.edu"))
	require.NotEmpty(t, f.notifier.token)
	assert.Equal(t, f.student.ID, f.notifier.account.ID)

	_, err := f.auth.Principal(ctx, f.notifier.token)
	requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthenticated)

	require.NoError(t, f.auth.ConfirmPasswordReset(ctx, f.notifier.token, "brand-new"))

	err = f.auth.ConfirmPasswordReset(ctx, f.notifier.token, "again")
	requireAPIError(t, err, http.StatusUnauthorized, apierror.CodeUnauthenticated)

	f.store.AssertExpectations(t)
}

func TestPasswordResetValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)

	err := f.auth.RequestPasswordReset(ctx, "not-an-email")
	requireAPIError(t, err, http.StatusBadRequest, apierror.CodeValidation)

	err = f.auth.ConfirmPasswordReset(ctx, "", "x")
	requireAPIError(t, err, http.StatusBadRequest, apierror.CodeValidation)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribex-api/internal/event"
	"scribex-api/internal/model"
	"scribex-api/pkg/apierror"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
	systemActor      = "system"
)

// AccountStore persists accounts with their profiles and guardian links.
type AccountStore interface {
	Create(ctx context.Context, account model.Account, profile model.Profile) error
	FindByID(ctx context.Context, id string) (model.Account, error)
	FindByUsername(ctx context.Context, username string) (model.Account, error)
	FindByEmail(ctx context.Context, email string) (model.Account, error)
	FindWithProfile(ctx context.Context, id string) (model.AccountWithProfile, error)
	Taken(ctx context.Context, username string, email string, excludeID string) (bool, bool, error)
	Update(ctx context.Context, account model.Account, profile *model.Profile) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, query model.ListAccountsQuery) ([]model.AccountWithProfile, int, error)
	Count(ctx context.Context) (int, error)
	Roles(ctx context.Context, ids []string) (map[string]model.Role, error)
	LinkStudent(ctx context.Context, guardianID string, studentID string) error
	UnlinkStudent(ctx context.Context, guardianID string, studentID string) (bool, error)
	StudentsOf(ctx context.Context, guardianID string) ([]string, error)
	GuardiansOf(ctx context.Context, studentID string) ([]string, error)
}

type AccountService struct {
	store            AccountStore
	passwords        *passwordHasher
	selfRegistration bool
	bus              event.Bus
	now              func() time.Time
}

func NewAccountService(store AccountStore, bcryptCost int, selfRegistration bool, bus event.Bus) *AccountService {
	return &AccountService{
		store:            store,
		passwords:        newPasswordHasher(bcryptCost),
		selfRegistration: selfRegistration,
		bus:              bus,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account and its role profile. A nil caller means
// self-registration, which must be enabled and never yields an admin.
func (s *AccountService) Register(ctx context.Context, caller *model.Principal, role model.Role, req model.CreateAccountRequest) (model.AccountWithProfile, error) {
	if !role.Valid() {
		return model.AccountWithProfile{}, apierror.Validation("unknown role", string(role))
	}

	actorID := ""
	switch {
	case caller == nil:
		if !s.selfRegistration {
			return model.AccountWithProfile{}, apierror.Forbidden("self registration is disabled")
		}
		if role == model.RoleAdmin {
			return model.AccountWithProfile{}, apierror.Forbidden("admin accounts cannot self register")
		}
		if fields, err := req.ProfileFields(); err == nil && len(fields.StudentIDs) > 0 {
			return model.AccountWithProfile{}, apierror.Forbidden("only admins can link students")
		}
	case !caller.IsAdmin():
		return model.AccountWithProfile{}, apierror.Forbidden("")
	default:
		actorID = caller.AccountID
	}

	return s.create(ctx, actorID, role, req)
}

func (s *AccountService) create(ctx context.Context, actorID string, role model.Role, req model.CreateAccountRequest) (model.AccountWithProfile, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := model.Validate(req); err != nil {
		return model.AccountWithProfile{}, validationError(err)
	}

	fields, err := req.ProfileFields()
	if err != nil {
		return model.AccountWithProfile{}, validationError(err)
	}

	id := uuid.NewString()
	profile, err := fields.Build(role, id)
	if err != nil {
		return model.AccountWithProfile{}, validationError(err)
	}

	if profile.Guardian != nil {
		if err := s.ensureStudents(ctx, profile.Guardian.StudentIDs); err != nil {
			return model.AccountWithProfile{}, err
		}
	}

	if err := s.ensureAvailable(ctx, req.Username, req.Email, ""); err != nil {
		return model.AccountWithProfile{}, err
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return model.AccountWithProfile{}, err
	}

	now := s.now()
	account := model.Account{
		ID:           id,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, account, profile); err != nil {
		return model.AccountWithProfile{}, storeError(err, id)
	}

	slog.Info("account created", "account_id", id, "role", role, "actor_id", actorID)
	s.publish(ctx, event.TypeAccountCreated, actorID, id, map[string]any{"role": string(role), "username": account.Username})

	return model.AccountWithProfile{Account: account, Profile: profile}, nil
}

// Authenticate checks a login (username, or email when it contains "@") and
// password. It reports false rather than an error for any credential miss.
func (s *AccountService) Authenticate(ctx context.Context, login string, password string) (model.Account, bool, error) {
	login = strings.TrimSpace(login)

	var (
		account model.Account
		err     error
	)
	if strings.Contains(login, "@") {
		account, err = s.store.FindByEmail(ctx, strings.ToLower(login))
	} else {
		account, err = s.store.FindByUsername(ctx, login)
	}
	if errors.Is(err, model.ErrAccountNotFound) {
		s.passwords.Burn(password)
		return model.Account{}, false, nil
	}
	if err != nil {
		return model.Account{}, false, err
	}

	if !s.passwords.Matches(account.PasswordHash, password) || !account.IsActive {
		return model.Account{}, false, nil
	}

	return account, true, nil
}

func (s *AccountService) GetByID(ctx context.Context, id string) (model.Account, error) {
	if !validID(id) {
		return model.Account{}, apierror.NotFound("account not found", id)
	}

	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		return model.Account{}, storeError(err, id)
	}
	return account, nil
}

func (s *AccountService) GetWithProfile(ctx context.Context, caller *model.Principal, id string) (model.AccountWithProfile, error) {
	if !caller.CanAccess(id) {
		return model.AccountWithProfile{}, apierror.Forbidden("")
	}
	return s.load(ctx, id)
}

func (s *AccountService) load(ctx context.Context, id string) (model.AccountWithProfile, error) {
	if !validID(id) {
		return model.AccountWithProfile{}, apierror.NotFound("account not found", id)
	}

	account, err := s.store.FindWithProfile(ctx, id)
	if err != nil {
		return model.AccountWithProfile{}, storeError(err, id)
	}
	return account, nil
}

// Principal resolves the caller identity for an account id. Missing or
// inactive accounts are reported as unauthenticated.
func (s *AccountService) Principal(ctx context.Context, id string) (*model.Principal, error) {
	if !validID(id) {
		return nil, model.ErrUnauthenticated
	}

	account, err := s.store.FindWithProfile(ctx, id)
	if errors.Is(err, model.ErrAccountNotFound) {
		return nil, model.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, model.ErrAccountInactive
	}

	return &model.Principal{AccountID: account.ID, Username: account.Username, Role: account.Profile.Role}, nil
}

func (s *AccountService) Update(ctx context.Context, caller *model.Principal, id string, req model.UpdateAccountRequest) (model.AccountWithProfile, error) {
	if !caller.CanAccess(id) {
		return model.AccountWithProfile{}, apierror.Forbidden("")
	}

	if err := model.Validate(req); err != nil {
		return model.AccountWithProfile{}, validationError(err)
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return model.AccountWithProfile{}, err
	}

	if req.IsActive != nil && !caller.IsAdmin() {
		return model.AccountWithProfile{}, apierror.Forbidden("only admins can change account status")
	}
	if req.Profile != nil && req.Profile.StudentIDs != nil && !caller.IsAdmin() {
		return model.AccountWithProfile{}, apierror.Forbidden("only admins can link students")
	}

	account := current.Account
	changed := make([]string, 0, 4)

	username, email := "", ""
	if req.Username != nil && strings.TrimSpace(*req.Username) != account.Username {
		username = strings.TrimSpace(*req.Username)
	}
	if req.Email != nil && strings.ToLower(strings.TrimSpace(*req.Email)) != account.Email {
		email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if err := s.ensureAvailable(ctx, username, email, id); err != nil {
		return model.AccountWithProfile{}, err
	}
	if username != "" {
		account.Username = username
		changed = append(changed, "username")
	}
	if email != "" {
		account.Email = email
		changed = append(changed, "email")
	}

	if req.Password != nil {
		if !caller.IsAdmin() {
			if req.CurrentPassword == nil || !s.passwords.Matches(account.PasswordHash, *req.CurrentPassword) {
				return model.AccountWithProfile{}, apierror.Forbidden("current password is incorrect")
			}
		}
		hash, err := s.passwords.Hash(*req.Password)
		if err != nil {
			return model.AccountWithProfile{}, err
		}
		account.PasswordHash = hash
		changed = append(changed, "password")
	}

	if req.IsActive != nil && *req.IsActive != account.IsActive {
		if caller.AccountID == id && !*req.IsActive {
			return model.AccountWithProfile{}, apierror.Validation("admins cannot deactivate their own account", id)
		}
		account.IsActive = *req.IsActive
		changed = append(changed, "is_active")
	}

	var profile *model.Profile
	if req.Profile != nil {
		next := cloneProfile(current.Profile)
		if err := req.Profile.Apply(&next); err != nil {
			return model.AccountWithProfile{}, validationError(err)
		}
		if err := next.Validate(); err != nil {
			return model.AccountWithProfile{}, validationError(err)
		}
		if next.Guardian != nil && req.Profile.StudentIDs != nil {
			if err := s.ensureStudents(ctx, next.Guardian.StudentIDs); err != nil {
				return model.AccountWithProfile{}, err
			}
		}
		profile = &next
		changed = append(changed, "profile")
	}

	account.UpdatedAt = s.now()
	if err := s.store.Update(ctx, account, profile); err != nil {
		return model.AccountWithProfile{}, storeError(err, id)
	}

	slog.Info("account updated", "account_id", id, "actor_id", caller.AccountID, "fields", changed)
	s.publish(ctx, event.TypeAccountUpdated, caller.AccountID, id, map[string]any{"fields": changed})

	return s.load(ctx, id)
}

func (s *AccountService) Delete(ctx context.Context, caller *model.Principal, id string) error {
	if !caller.IsAdmin() {
		return apierror.Forbidden("")
	}
	if caller.AccountID == id {
		return apierror.Validation("admins cannot delete their own account", id)
	}
	if !validID(id) {
		return apierror.NotFound("account not found", id)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return storeError(err, id)
	}

	slog.Info("account deleted", "account_id", id, "actor_id", caller.AccountID)
	s.publish(ctx, event.TypeAccountDeleted, caller.AccountID, id, nil)
	return nil
}

func (s *AccountService) List(ctx context.Context, caller *model.Principal, query model.ListAccountsQuery) ([]model.AccountWithProfile, model.Meta, error) {
	if !caller.IsAdmin() {
		return nil, model.Meta{}, apierror.Forbidden("")
	}
	if query.Role != "" && !query.Role.Valid() {
		return nil, model.Meta{}, apierror.Validation("unknown role", string(query.Role))
	}
	query.Page, query.Limit = normalizePage(query.Page, query.Limit)

	accounts, total, err := s.store.List(ctx, query)
	if err != nil {
		return nil, model.Meta{}, err
	}
	return accounts, model.NewMeta(query.Page, query.Limit, total), nil
}

func (s *AccountService) LinkStudent(ctx context.Context, caller *model.Principal, guardianID string, studentID string) error {
	if !caller.IsAdmin() {
		return apierror.Forbidden("")
	}
	if err := s.ensureRole(ctx, guardianID, model.RoleParent); err != nil {
		return err
	}
	if err := s.ensureStudents(ctx, []string{studentID}); err != nil {
		return err
	}

	if err := s.store.LinkStudent(ctx, guardianID, studentID); err != nil {
		return storeError(err, studentID)
	}

	s.publish(ctx, event.TypeGuardianLinked, caller.AccountID, guardianID, map[string]any{"student_id": studentID})
	return nil
}

func (s *AccountService) UnlinkStudent(ctx context.Context, caller *model.Principal, guardianID string, studentID string) error {
	if !caller.IsAdmin() {
		return apierror.Forbidden("")
	}
	if !validID(guardianID) || !validID(studentID) {
		return apierror.NotFound("link not found", studentID)
	}

	removed, err := s.store.UnlinkStudent(ctx, guardianID, studentID)
	if err != nil {
		return err
	}
	if !removed {
		return apierror.NotFound("link not found", studentID)
	}

	s.publish(ctx, event.TypeGuardianUnlink, caller.AccountID, guardianID, map[string]any{"student_id": studentID})
	return nil
}

// Students lists the students linked to a guardian.
func (s *AccountService) Students(ctx context.Context, caller *model.Principal, guardianID string) ([]string, error) {
	if !caller.CanAccess(guardianID) {
		return nil, apierror.Forbidden("")
	}
	if err := s.ensureRole(ctx, guardianID, model.RoleParent); err != nil {
		return nil, err
	}
	return s.store.StudentsOf(ctx, guardianID)
}

// Guardians lists the guardians linked to a student.
func (s *AccountService) Guardians(ctx context.Context, caller *model.Principal, studentID string) ([]string, error) {
	if !caller.CanAccess(studentID) {
		return nil, apierror.Forbidden("")
	}
	if err := s.ensureRole(ctx, studentID, model.RoleStudent); err != nil {
		return nil, err
	}
	return s.store.GuardiansOf(ctx, studentID)
}

// SetPassword replaces the password hash without any caller checks. Callers
// must have proven the right to do so, e.g. with a reset token.
func (s *AccountService) SetPassword(ctx context.Context, id string, password string) error {
	if strings.TrimSpace(password) == "" || len(password) > 72 {
		return apierror.Validation("new_password must be between 1 and 72 bytes", "")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, id, hash); err != nil {
		return storeError(err, id)
	}

	s.publish(ctx, event.TypePasswordChanged, id, id, nil)
	return nil
}

// FindActiveByEmail returns the active account registered under email.
func (s *AccountService) FindActiveByEmail(ctx context.Context, email string) (model.Account, bool, error) {
	account, err := s.store.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, model.ErrAccountNotFound) {
		return model.Account{}, false, nil
	}
	if err != nil {
		return model.Account{}, false, err
	}
	return account, account.IsActive, nil
}

// EnsureBootstrapAdmin seeds the first admin when no account exists yet.
func (s *AccountService) EnsureBootstrapAdmin(ctx context.Context, username string, email string, password string) error {
	if strings.TrimSpace(username) == "" {
		return nil
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err = s.create(ctx, systemActor, model.RoleAdmin, model.CreateAccountRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	slog.Info("bootstrap admin created", "username", username)
	return nil
}

func (s *AccountService) ensureAvailable(ctx context.Context, username string, email string, excludeID string) error {
	if username == "" && email == "" {
		return nil
	}

	usernameTaken, emailTaken, err := s.store.Taken(ctx, username, email, excludeID)
	if err != nil {
		return err
	}
	if usernameTaken {
		return apierror.Conflict("username already registered", username)
	}
	if emailTaken {
		return apierror.Conflict("email already registered", email)
	}
	return nil
}

func (s *AccountService) ensureStudents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if !validID(id) {
			return apierror.Validation("student_ids must reference existing students", id)
		}
	}

	roles, err := s.store.Roles(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if roles[id] != model.RoleStudent {
			return apierror.Validation("student_ids must reference existing students", id)
		}
	}
	return nil
}

func (s *AccountService) ensureRole(ctx context.Context, id string, role model.Role) error {
	if !validID(id) {
		return apierror.NotFound("account not found", id)
	}

	roles, err := s.store.Roles(ctx, []string{id})
	if err != nil {
		return err
	}
	got, ok := roles[id]
	if !ok {
		return apierror.NotFound("account not found", id)
	}
	if got != role {
		return apierror.Validation(fmt.Sprintf("account is not a %s", role), id)
	}
	return nil
}

func (s *AccountService) publish(ctx context.Context, typ event.Type, actorID string, subjectID string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.New(ctx, typ, actorID, subjectID, payload))
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func normalizePage(page int, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func cloneProfile(p model.Profile) model.Profile {
	out := p
	switch {
	case p.Student != nil:
		s := *p.Student
		out.Student = &s
	case p.Teacher != nil:
		t := *p.Teacher
		out.Teacher = &t
	case p.Guardian != nil:
		g := *p.Guardian
		out.Guardian = &g
	case p.Admin != nil:
		a := *p.Admin
		out.Admin = &a
	}
	return out
}

func validationError(err error) error {
	msg := err.Error()
	for _, sentinel := range []error{model.ErrInvalidInput, model.ErrInvalidProfile} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return apierror.Validation(msg, "")
}

// storeError turns repository sentinels into client facing errors. Anything
// else is passed through and reported as an internal error by the handler.
func storeError(err error, id string) error {
	switch {
	case errors.Is(err, model.ErrAccountNotFound):
		return apierror.NotFound("account not found", id)
	case errors.Is(err, model.ErrUsernameTaken):
		return apierror.Conflict("username already registered", "")
	case errors.Is(err, model.ErrEmailTaken):
		return apierror.Conflict("email already registered", "")
	case errors.Is(err, model.ErrStudentNotFound):
		return apierror.Validation("student_ids must reference existing students", "")
	default:
		return err
	}
}

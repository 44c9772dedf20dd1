package repository

import (
	"context"

	"github.com/stretchr/testify/mock"

	"scribex-api/internal/model"
)

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, account model.Account, profile model.Profile) error {
	args := m.Called(ctx, account, profile)
	return args.Error(0)
}

func (m *MockAccountRepository) FindByID(ctx context.Context, id string) (model.Account, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Account), args.Error(1)
}

func (m *MockAccountRepository) FindByUsername(ctx context.Context, username string) (model.Account, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(model.Account), args.Error(1)
}

func (m *MockAccountRepository) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.Account), args.Error(1)
}

func (m *MockAccountRepository) FindWithProfile(ctx context.Context, id string) (model.AccountWithProfile, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.AccountWithProfile), args.Error(1)
}

func (m *MockAccountRepository) Taken(ctx context.Context, username string, email string, excludeID string) (bool, bool, error) {
	args := m.Called(ctx, username, email, excludeID)
	return args.Bool(0), args.Bool(1), args.Error(2)
}

func (m *MockAccountRepository) Update(ctx context.Context, account model.Account, profile *model.Profile) error {
	args := m.Called(ctx, account, profile)
	return args.Error(0)
}

func (m *MockAccountRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *MockAccountRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAccountRepository) List(ctx context.Context, query model.ListAccountsQuery) ([]model.AccountWithProfile, int, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]model.AccountWithProfile), args.Int(1), args.Error(2)
}

func (m *MockAccountRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockAccountRepository) Roles(ctx context.Context, ids []string) (map[string]model.Role, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]model.Role), args.Error(1)
}

func (m *MockAccountRepository) LinkStudent(ctx context.Context, guardianID string, studentID string) error {
	args := m.Called(ctx, guardianID, studentID)
	return args.Error(0)
}

func (m *MockAccountRepository) UnlinkStudent(ctx context.Context, guardianID string, studentID string) (bool, error) {
	args := m.Called(ctx, guardianID, studentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountRepository) StudentsOf(ctx context.Context, guardianID string) ([]string, error) {
	args := m.Called(ctx, guardianID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAccountRepository) GuardiansOf(ctx context.Context, studentID string) ([]string, error) {
	args := m.Called(ctx, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Get(1).(model.Meta), args.Error(2)
	}
	return args.Get(0).([]model.AuditEntry), args.Get(1).(model.Meta), args.Error(2)
}

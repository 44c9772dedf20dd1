package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleAdmin   Role = "admin"
)

var Roles = []Role{RoleStudent, RoleTeacher, RoleParent, RoleAdmin}

// ParseRole accepts the role tag case-insensitively. "guardian" is an alias
// for parent.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "student":
		return RoleStudent, true
	case "teacher":
		return RoleTeacher, true
	case "parent", "guardian":
		return RoleParent, true
	case "admin":
		return RoleAdmin, true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleParent, RoleAdmin:
		return true
	}
	return false
}

type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type AccountWithProfile struct {
	Account
	Profile Profile `json:"profile"`
}

type AccountSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

func (a AccountWithProfile) Summary() AccountSummary {
	return AccountSummary{ID: a.ID, Username: a.Username, Email: a.Email, Role: a.Profile.Role}
}

// Principal is the authenticated caller of a request.
type Principal struct {
	AccountID string
	Username  string
	Role      Role
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// CanAccess reports whether the caller may read or update the account.
func (p *Principal) CanAccess(accountID string) bool {
	if p == nil {
		return false
	}
	return p.IsAdmin() || p.AccountID == accountID
}

type ListAccountsQuery struct {
	Role  Role
	Page  int
	Limit int
}

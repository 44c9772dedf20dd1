package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"scribex-api/internal/database"
	"scribex-api/internal/model"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `a.id::text, a.username, a.email, a.password_hash, a.is_active, a.created_at, a.updated_at`

const profileColumns = `p.role, p.first_name, p.last_name, p.grade_level, p.has_iep, p.iep_summary,
	p.accommodations, p.iep_goals, p.last_iep_review, p.subject_areas, p.room, p.grade_levels, p.department`

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts the account, its profile and any guardian links in one
// transaction.
func (r *AccountRepository) Create(ctx context.Context, account model.Account, profile model.Profile) error {
	return database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts (id, username, email, password_hash, is_active, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			account.ID, account.Username, account.Email, account.PasswordHash, account.IsActive,
			account.CreatedAt, account.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create account: %w", mapConstraintError(err))
		}

		args, err := profileArgs(profile)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO profiles (account_id, role, first_name, last_name, grade_level, has_iep, iep_summary,
			                       accommodations, iep_goals, last_iep_review, subject_areas, room, grade_levels, department)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			append([]any{account.ID}, args...)...)
		if err != nil {
			return fmt.Errorf("create profile: %w", mapConstraintError(err))
		}

		if profile.Role == model.RoleParent && profile.Guardian != nil {
			if err := replaceStudentLinks(ctx, tx, account.ID, profile.Guardian.StudentIDs); err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (model.Account, error) {
	return r.findAccount(ctx, `a.id = $1`, id)
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (model.Account, error) {
	return r.findAccount(ctx, `lower(a.username) = lower($1)`, strings.TrimSpace(username))
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.findAccount(ctx, `lower(a.email) = lower($1)`, strings.TrimSpace(email))
}

func (r *AccountRepository) findAccount(ctx context.Context, where string, arg any) (model.Account, error) {
	var a model.Account
	err := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts a WHERE `+where, arg).
		Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) FindWithProfile(ctx context.Context, id string) (model.AccountWithProfile, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+`, `+profileColumns+`
		 FROM accounts a JOIN profiles p ON p.account_id = a.id
		 WHERE a.id = $1`, id)

	out, err := scanAccountWithProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AccountWithProfile{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.AccountWithProfile{}, fmt.Errorf("find account with profile: %w", err)
	}

	if err := r.attachLinks(ctx, []*model.AccountWithProfile{&out}); err != nil {
		return model.AccountWithProfile{}, err
	}
	return out, nil
}

// Taken reports which of username and email already belong to an account
// other than excludeID.
func (r *AccountRepository) Taken(ctx context.Context, username string, email string, excludeID string) (bool, bool, error) {
	var usernameTaken, emailTaken bool
	err := r.pool.QueryRow(ctx,
		`SELECT
		    EXISTS(SELECT 1 FROM accounts WHERE $1 <> '' AND lower(username) = lower($1) AND id::text <> $3),
		    EXISTS(SELECT 1 FROM accounts WHERE $2 <> '' AND lower(email) = lower($2) AND id::text <> $3)`,
		strings.TrimSpace(username), strings.TrimSpace(email), excludeID).Scan(&usernameTaken, &emailTaken)
	if err != nil {
		return false, false, fmt.Errorf("check username/email: %w", err)
	}
	return usernameTaken, emailTaken, nil
}

// Update writes the account columns and, when profile is non-nil, the
// profile columns and guardian links in one transaction.
func (r *AccountRepository) Update(ctx context.Context, account model.Account, profile *model.Profile) error {
	return database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE accounts
			 SET username = $2, email = $3, password_hash = $4, is_active = $5, updated_at = $6
			 WHERE id = $1`,
			account.ID, account.Username, account.Email, account.PasswordHash, account.IsActive, account.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update account: %w", mapConstraintError(err))
		}
		if tag.RowsAffected() == 0 {
			return model.ErrAccountNotFound
		}

		if profile == nil {
			return nil
		}

		args, err := profileArgs(*profile)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE profiles
			 SET role = $2, first_name = $3, last_name = $4, grade_level = $5, has_iep = $6, iep_summary = $7,
			     accommodations = $8, iep_goals = $9, last_iep_review = $10, subject_areas = $11, room = $12,
			     grade_levels = $13, department = $14
			 WHERE account_id = $1`,
			append([]any{account.ID}, args...)...)
		if err != nil {
			return fmt.Errorf("update profile: %w", mapConstraintError(err))
		}

		if profile.Role == model.RoleParent && profile.Guardian != nil {
			return replaceStudentLinks(ctx, tx, account.ID, profile.Guardian.StudentIDs)
		}
		return nil
	})
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// Delete removes the account. The profile and guardian links go with it
// through ON DELETE CASCADE.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) List(ctx context.Context, query model.ListAccountsQuery) ([]model.AccountWithProfile, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM profiles p WHERE $1 = '' OR p.role = $1`, string(query.Role)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+`, `+profileColumns+`
		 FROM accounts a JOIN profiles p ON p.account_id = a.id
		 WHERE $1 = '' OR p.role = $1
		 ORDER BY lower(a.username)
		 LIMIT $2 OFFSET $3`,
		string(query.Role), query.Limit, (query.Page-1)*query.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]model.AccountWithProfile, 0)
	for rows.Next() {
		a, err := scanAccountWithProfile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate accounts: %w", err)
	}

	ptrs := make([]*model.AccountWithProfile, len(accounts))
	for i := range accounts {
		ptrs[i] = &accounts[i]
	}
	if err := r.attachLinks(ctx, ptrs); err != nil {
		return nil, 0, err
	}

	return accounts, total, nil
}

func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return count, nil
}

// Roles returns the profile role of every id that exists.
func (r *AccountRepository) Roles(ctx context.Context, ids []string) (map[string]model.Role, error) {
	roles := make(map[string]model.Role, len(ids))
	if len(ids) == 0 {
		return roles, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT account_id::text, role FROM profiles WHERE account_id::text = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var role model.Role
		if err := rows.Scan(&id, &role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles[id] = role
	}
	return roles, rows.Err()
}

// LinkStudent records a guardian/student association. Linking twice is a no-op.
func (r *AccountRepository) LinkStudent(ctx context.Context, guardianID string, studentID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO guardian_students (guardian_id, student_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, guardianID, studentID)
	if err != nil {
		return fmt.Errorf("link student: %w", mapConstraintError(err))
	}
	return nil
}

func (r *AccountRepository) UnlinkStudent(ctx context.Context, guardianID string, studentID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM guardian_students WHERE guardian_id = $1 AND student_id = $2`, guardianID, studentID)
	if err != nil {
		return false, fmt.Errorf("unlink student: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *AccountRepository) StudentsOf(ctx context.Context, guardianID string) ([]string, error) {
	return r.linkedIDs(ctx,
		`SELECT student_id::text FROM guardian_students WHERE guardian_id = $1 ORDER BY created_at, student_id`, guardianID)
}

func (r *AccountRepository) GuardiansOf(ctx context.Context, studentID string) ([]string, error) {
	return r.linkedIDs(ctx,
		`SELECT guardian_id::text FROM guardian_students WHERE student_id = $1 ORDER BY created_at, guardian_id`, studentID)
}

func (r *AccountRepository) linkedIDs(ctx context.Context, query string, id string) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var linked string
		if err := rows.Scan(&linked); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		ids = append(ids, linked)
	}
	return ids, rows.Err()
}

// attachLinks fills GuardianIDs on students and StudentIDs on guardians.
func (r *AccountRepository) attachLinks(ctx context.Context, accounts []*model.AccountWithProfile) error {
	ids := make([]string, 0, len(accounts))
	byID := make(map[string]*model.AccountWithProfile, len(accounts))
	for _, a := range accounts {
		if a.Profile.Role == model.RoleStudent || a.Profile.Role == model.RoleParent {
			ids = append(ids, a.ID)
			byID[a.ID] = a
		}
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT guardian_id::text, student_id::text FROM guardian_students
		 WHERE guardian_id::text = ANY($1) OR student_id::text = ANY($1)
		 ORDER BY created_at, guardian_id, student_id`, ids)
	if err != nil {
		return fmt.Errorf("load guardian links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var guardianID, studentID string
		if err := rows.Scan(&guardianID, &studentID); err != nil {
			return fmt.Errorf("scan guardian link: %w", err)
		}
		if g, ok := byID[guardianID]; ok && g.Profile.Guardian != nil {
			g.Profile.Guardian.StudentIDs = append(g.Profile.Guardian.StudentIDs, studentID)
		}
		if s, ok := byID[studentID]; ok && s.Profile.Student != nil {
			s.Profile.Student.GuardianIDs = append(s.Profile.Student.GuardianIDs, guardianID)
		}
	}
	return rows.Err()
}

func replaceStudentLinks(ctx context.Context, q querier, guardianID string, studentIDs []string) error {
	if _, err := q.Exec(ctx, `DELETE FROM guardian_students WHERE guardian_id = $1`, guardianID); err != nil {
		return fmt.Errorf("clear guardian links: %w", err)
	}
	for _, studentID := range studentIDs {
		if _, err := q.Exec(ctx,
			`INSERT INTO guardian_students (guardian_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			guardianID, studentID); err != nil {
			return fmt.Errorf("link student %s: %w", studentID, mapConstraintError(err))
		}
	}
	return nil
}

func profileArgs(p model.Profile) ([]any, error) {
	var (
		gradeLevel     *int
		hasIEP         bool
		iepSummary     *string
		accommodations []byte
		iepGoals       []byte
		lastReview     *time.Time
		subjectAreas   []string
		room           *string
		gradeLevels    []int
		department     *string
		err            error
	)

	switch {
	case p.Student != nil:
		grade := p.Student.GradeLevel
		gradeLevel = &grade
		hasIEP = p.Student.HasIEP
		iepSummary = p.Student.IEPSummary
		lastReview = p.Student.LastIEPReview
		if accommodations, err = jsonOrNil(p.Student.Accommodations); err != nil {
			return nil, err
		}
		if iepGoals, err = jsonOrNil(p.Student.IEPGoals); err != nil {
			return nil, err
		}
	case p.Teacher != nil:
		subjectAreas = p.Teacher.SubjectAreas
		room = p.Teacher.Room
		gradeLevels = p.Teacher.GradeLevels
	case p.Admin != nil:
		department = p.Admin.Department
	}

	return []any{
		string(p.Role), p.FirstName, p.LastName, gradeLevel, hasIEP, iepSummary,
		accommodations, iepGoals, lastReview, subjectAreas, room, gradeLevels, department,
	}, nil
}

func scanAccountWithProfile(row pgx.Row) (model.AccountWithProfile, error) {
	var (
		out            model.AccountWithProfile
		role           string
		gradeLevel     *int
		hasIEP         bool
		iepSummary     *string
		accommodations []byte
		iepGoals       []byte
		lastReview     *time.Time
		subjectAreas   []string
		room           *string
		gradeLevels    []int
		department     *string
	)

	err := row.Scan(
		&out.ID, &out.Username, &out.Email, &out.PasswordHash, &out.IsActive, &out.CreatedAt, &out.UpdatedAt,
		&role, &out.Profile.FirstName, &out.Profile.LastName, &gradeLevel, &hasIEP, &iepSummary,
		&accommodations, &iepGoals, &lastReview, &subjectAreas, &room, &gradeLevels, &department,
	)
	if err != nil {
		return model.AccountWithProfile{}, err
	}

	out.Profile.AccountID = out.ID
	out.Profile.Role = model.Role(role)

	switch out.Profile.Role {
	case model.RoleStudent:
		s := &model.StudentDetails{HasIEP: hasIEP, IEPSummary: iepSummary, LastIEPReview: lastReview, GuardianIDs: []string{}}
		if gradeLevel != nil {
			s.GradeLevel = *gradeLevel
		}
		if len(accommodations) > 0 {
			if err := json.Unmarshal(accommodations, &s.Accommodations); err != nil {
				return model.AccountWithProfile{}, fmt.Errorf("decode accommodations: %w", err)
			}
		}
		if len(iepGoals) > 0 {
			if err := json.Unmarshal(iepGoals, &s.IEPGoals); err != nil {
				return model.AccountWithProfile{}, fmt.Errorf("decode iep goals: %w", err)
			}
		}
		out.Profile.Student = s
	case model.RoleTeacher:
		out.Profile.Teacher = &model.TeacherDetails{SubjectAreas: subjectAreas, Room: room, GradeLevels: gradeLevels}
	case model.RoleParent:
		out.Profile.Guardian = &model.GuardianDetails{StudentIDs: []string{}}
	case model.RoleAdmin:
		out.Profile.Admin = &model.AdminDetails{Department: department}
	}

	return out, nil
}

func jsonOrNil[T any](v map[string]T) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode profile json: %w", err)
	}
	return data, nil
}

// mapConstraintError turns unique and foreign key violations into model
// sentinels so callers never see driver errors.
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case "accounts_username_key":
			return model.ErrUsernameTaken
		case "accounts_email_key":
			return model.ErrEmailTaken
		}
	case pgForeignKeyViolation:
		if strings.HasPrefix(pgErr.ConstraintName, "guardian_students") {
			return model.ErrStudentNotFound
		}
	}

	return err
}

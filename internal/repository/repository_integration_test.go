//go:build integration

package repository

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribex-api/internal/database"
	"scribex-api/internal/model"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, url, 4, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE accounts, revoked_tokens, audit_entries CASCADE`)
	require.NoError(t, err)

	return db
}

func seedAccount(t *testing.T, repo *AccountRepository, username string, profile model.Profile) model.Account {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	account := model.Account{
		ID:           profile.AccountID,
		Username:     username,
		Email:        username + "@school.edu",
		PasswordHash: "$2a$04$placeholderplaceholderplaceholderplaceholderplace",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.Create(context.Background(), account, profile))
	return account
}

func studentProfile(id string, grade int) model.Profile {
	return model.Profile{
		AccountID: id,
		Role:      model.RoleStudent,
		Student: &model.StudentDetails{
			GradeLevel:     grade,
			HasIEP:         true,
			Accommodations: map[string]bool{"extended_time": true},
			GuardianIDs:    []string{},
		},
	}
}

func TestAccountRepositoryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db.Pool)
	ctx := context.Background()

	studentID := uuid.NewString()
	seedAccount(t, repo, "student1", studentProfile(studentID, 7))

	guardianID := uuid.NewString()
	seedAccount(t, repo, "parent1", model.Profile{
		AccountID: guardianID,
		Role:      model.RoleParent,
		Guardian:  &model.GuardianDetails{StudentIDs: []string{studentID}},
	})

	got, err := repo.FindWithProfile(ctx, studentID)
	require.NoError(t, err)
	assert.Equal(t, "student1", got.Username)
	require.NotNil(t, got.Profile.Student)
	assert.Equal(t, 7, got.Profile.Student.GradeLevel)
	assert.True(t, got.Profile.Student.Accommodations["extended_time"])
	assert.Equal(t, []string{guardianID}, got.Profile.Student.GuardianIDs)

	byEmail, err := repo.FindByEmail(ctx, "student1@school.edu")
	require.NoError(t, err)
	assert.Equal(t, studentID, byEmail.ID)

	students, err := repo.StudentsOf(ctx, guardianID)
	require.NoError(t, err)
	assert.Equal(t, []string{studentID}, students)

	usernameTaken, emailTaken, err := repo.Taken(ctx, "STUDENT1", "other@school.edu", "")
	require.NoError(t, err)
	assert.True(t, usernameTaken)
	assert.False(t, emailTaken)

	roles, err := repo.Roles(ctx, []string{studentID, guardianID, uuid.NewString()})
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Role{studentID: model.RoleStudent, guardianID: model.RoleParent}, roles)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAccountRepositoryUniqueness(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db.Pool)

	seedAccount(t, repo, "student1", studentProfile(uuid.NewString(), 3))

	id := uuid.NewString()
	err := repo.Create(context.Background(), model.Account{
		ID:           id,
		Username:     "Student1",
		Email:        "fresh@school.edu",
		PasswordHash: "x",
		IsActive:     true,
	}, studentProfile(id, 3))
	assert.ErrorIs(t, err, model.ErrUsernameTaken)
}

func TestAccountRepositoryCreateIsAtomic(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db.Pool)
	ctx := context.Background()

	id := uuid.NewString()
	err := repo.Create(ctx, model.Account{
		ID:           id,
		Username:     "parent1",
		Email:        "parent1@school.edu",
		PasswordHash: "x",
		IsActive:     true,
	}, model.Profile{
		AccountID: id,
		Role:      model.RoleParent,
		Guardian:  &model.GuardianDetails{StudentIDs: []string{uuid.NewString()}},
	})
	require.ErrorIs(t, err, model.ErrStudentNotFound)

	_, err = repo.FindByUsername(ctx, "parent1")
	assert.ErrorIs(t, err, model.ErrAccountNotFound)

	var profiles int
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT count(*) FROM profiles WHERE account_id = $1`, id).Scan(&profiles))
	assert.Zero(t, profiles)
}

func TestAccountRepositoryDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db.Pool)
	ctx := context.Background()

	studentID := uuid.NewString()
	seedAccount(t, repo, "student1", studentProfile(studentID, 5))
	guardianID := uuid.NewString()
	seedAccount(t, repo, "parent1", model.Profile{
		AccountID: guardianID,
		Role:      model.RoleParent,
		Guardian:  &model.GuardianDetails{StudentIDs: []string{studentID}},
	})

	require.NoError(t, repo.Delete(ctx, studentID))

	_, err := repo.FindWithProfile(ctx, studentID)
	assert.ErrorIs(t, err, model.ErrAccountNotFound)

	var profiles int
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT count(*) FROM profiles WHERE account_id = $1`, studentID).Scan(&profiles))
	assert.Zero(t, profiles)

	students, err := repo.StudentsOf(ctx, guardianID)
	require.NoError(t, err)
	assert.Empty(t, students)

	assert.ErrorIs(t, repo.Delete(ctx, studentID), model.ErrAccountNotFound)
}

func TestAccountRepositoryLinks(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db.Pool)
	ctx := context.Background()

	studentID := uuid.NewString()
	seedAccount(t, repo, "student1", studentProfile(studentID, 5))
	guardianID := uuid.NewString()
	seedAccount(t, repo, "parent1", model.Profile{
		AccountID: guardianID,
		Role:      model.RoleParent,
		Guardian:  &model.GuardianDetails{StudentIDs: []string{}},
	})

	require.NoError(t, repo.LinkStudent(ctx, guardianID, studentID))
	require.NoError(t, repo.LinkStudent(ctx, guardianID, studentID))

	guardians, err := repo.GuardiansOf(ctx, studentID)
	require.NoError(t, err)
	assert.Equal(t, []string{guardianID}, guardians)

	assert.ErrorIs(t, repo.LinkStudent(ctx, guardianID, uuid.NewString()), model.ErrStudentNotFound)

	removed, err := repo.UnlinkStudent(ctx, guardianID, studentID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.UnlinkStudent(ctx, guardianID, studentID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRevokedTokenRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewRevokedTokenRepository(db.Pool)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, "live", time.Now().Add(time.Hour)))
	require.NoError(t, repo.Add(ctx, "live", time.Now().Add(2*time.Hour)))
	require.NoError(t, repo.Add(ctx, "stale", time.Now().Add(-time.Minute)))

	revoked, err := repo.Contains(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = repo.Contains(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = repo.Prune(ctx)
	require.NoError(t, err)

	revoked, err = repo.Contains(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokedTokenRepositoryClaim(t *testing.T) {
	db := newTestDB(t)
	repo := NewRevokedTokenRepository(db.Pool)
	ctx := context.Background()

	claimed, err := repo.Claim(ctx, "refresh-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.Claim(ctx, "refresh-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, repo.Add(ctx, "stale", time.Now().Add(-time.Minute)))
	claimed, err = repo.Claim(ctx, "stale", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, claimed, "an expired row does not block a new claim")

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := repo.Claim(ctx, "contended", time.Now().Add(time.Hour)); err == nil && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestAuditRepositoryQuery(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db.Pool)
	ctx := context.Background()

	actor := uuid.NewString()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Log(ctx, model.AuditEntry{
			Action:     "auth.login",
			OccurredAt: time.Now().UTC(),
			ActorID:    actor,
			SubjectID:  actor,
			IP:         "203.0.113.7",
			Details:    map[string]any{"attempt": i},
		}))
	}
	require.NoError(t, repo.Log(ctx, model.AuditEntry{Action: "auth.logout", OccurredAt: time.Now().UTC()}))

	entries, meta, err := repo.Query(ctx, model.AuditQuery{Action: "auth.login", Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 3, meta.Total)
	assert.Equal(t, 2, meta.TotalPages)
	assert.Equal(t, "203.0.113.7", entries[0].IP)

	entries, _, err = repo.Query(ctx, model.AuditQuery{ActorID: actor, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

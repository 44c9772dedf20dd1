package model

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=254"`
	Password string `json:"password" validate:"required,maxbytes=72"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,maxbytes=72"`
}

// CreateAccountRequest accepts the profile either nested under "profile" or
// flattened next to the credentials.
type CreateAccountRequest struct {
	Username string        `json:"username" validate:"required,min=3,max=50,username"`
	Email    string        `json:"email" validate:"required,email,max=254"`
	Password string        `json:"password" validate:"required,maxbytes=72"`
	Profile  *ProfileInput `json:"profile"`
	ProfileInput
}

// ProfileFields returns whichever profile form the request used. Mixing the
// nested and flattened forms is rejected.
func (r CreateAccountRequest) ProfileFields() (ProfileInput, error) {
	if r.Profile == nil {
		return r.ProfileInput, nil
	}
	if !reflect.ValueOf(r.ProfileInput).IsZero() {
		return ProfileInput{}, fmt.Errorf("%w: send profile fields either nested under profile or flattened, not both", ErrInvalidInput)
	}
	return *r.Profile, nil
}

type UpdateAccountRequest struct {
	Username        *string       `json:"username" validate:"omitempty,min=3,max=50,username"`
	Email           *string       `json:"email" validate:"omitempty,email,max=254"`
	Password        *string       `json:"password" validate:"omitempty,min=1,maxbytes=72"`
	CurrentPassword *string       `json:"current_password"`
	IsActive        *bool         `json:"is_active"`
	Profile         *ProfileInput `json:"profile"`
}

// ProfileInput carries every profile field of every variant. Fields that do
// not belong to the target role are rejected.
type ProfileInput struct {
	FirstName      *string           `json:"first_name" validate:"omitempty,max=100"`
	LastName       *string           `json:"last_name" validate:"omitempty,max=100"`
	GradeLevel     *int              `json:"grade_level" validate:"omitempty,min=1,max=12"`
	HasIEP         *bool             `json:"has_iep"`
	IEPSummary     *string           `json:"iep_summary" validate:"omitempty,max=4000"`
	Accommodations map[string]bool   `json:"accommodations"`
	IEPGoals       map[string]string `json:"iep_goals"`
	LastIEPReview  *time.Time        `json:"last_iep_review"`
	SubjectArea    *string           `json:"subject_area" validate:"omitempty,max=100"`
	SubjectAreas   []string          `json:"subject_areas" validate:"omitempty,dive,max=100"`
	Room           *string           `json:"room" validate:"omitempty,max=50"`
	GradeLevels    []int             `json:"grade_levels" validate:"omitempty,dive,min=1,max=12"`
	StudentIDs     []string          `json:"student_ids" validate:"omitempty,dive,uuid"`
	Department     *string           `json:"department" validate:"omitempty,max=100"`
}

func (in ProfileInput) studentFieldsSet() bool {
	return in.GradeLevel != nil || in.HasIEP != nil || in.IEPSummary != nil ||
		in.Accommodations != nil || in.IEPGoals != nil || in.LastIEPReview != nil
}

func (in ProfileInput) teacherFieldsSet() bool {
	return in.SubjectArea != nil || in.SubjectAreas != nil || in.Room != nil || in.GradeLevels != nil
}

func (in ProfileInput) guardianFieldsSet() bool {
	return in.StudentIDs != nil
}

func (in ProfileInput) adminFieldsSet() bool {
	return in.Department != nil
}

func (in ProfileInput) checkFieldsFor(role Role) error {
	foreign := map[Role]bool{
		RoleStudent: in.studentFieldsSet(),
		RoleTeacher: in.teacherFieldsSet(),
		RoleParent:  in.guardianFieldsSet(),
		RoleAdmin:   in.adminFieldsSet(),
	}
	for other, set := range foreign {
		if other != role && set {
			return fmt.Errorf("%w: %s fields are not allowed on a %s profile", ErrInvalidProfile, other, role)
		}
	}
	return nil
}

// Build creates the profile variant for role from the input.
func (in ProfileInput) Build(role Role, accountID string) (Profile, error) {
	if !role.Valid() {
		return Profile{}, fmt.Errorf("%w: unknown role %q", ErrInvalidProfile, role)
	}
	if err := in.checkFieldsFor(role); err != nil {
		return Profile{}, err
	}

	profile := Profile{
		AccountID: accountID,
		FirstName: trimmed(in.FirstName),
		LastName:  trimmed(in.LastName),
		Role:      role,
	}

	switch role {
	case RoleStudent:
		profile.Student = &StudentDetails{GuardianIDs: []string{}}
	case RoleTeacher:
		profile.Teacher = &TeacherDetails{}
	case RoleParent:
		profile.Guardian = &GuardianDetails{StudentIDs: []string{}}
	case RoleAdmin:
		profile.Admin = &AdminDetails{}
	}

	in.FirstName, in.LastName = nil, nil
	if err := in.Apply(&profile); err != nil {
		return Profile{}, err
	}

	return profile, profile.Validate()
}

// Apply patches profile with the fields present in the input.
func (in ProfileInput) Apply(profile *Profile) error {
	if err := in.checkFieldsFor(profile.Role); err != nil {
		return err
	}

	if in.FirstName != nil {
		profile.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		profile.LastName = strings.TrimSpace(*in.LastName)
	}

	switch profile.Role {
	case RoleStudent:
		s := profile.Student
		if in.GradeLevel != nil {
			s.GradeLevel = *in.GradeLevel
		}
		if in.HasIEP != nil {
			s.HasIEP = *in.HasIEP
		}
		if in.IEPSummary != nil {
			s.IEPSummary = optionalText(*in.IEPSummary)
		}
		if in.Accommodations != nil {
			s.Accommodations = in.Accommodations
		}
		if in.IEPGoals != nil {
			s.IEPGoals = in.IEPGoals
		}
		if in.LastIEPReview != nil {
			reviewed := in.LastIEPReview.UTC()
			s.LastIEPReview = &reviewed
		}
	case RoleTeacher:
		t := profile.Teacher
		if in.SubjectAreas != nil {
			t.SubjectAreas = cleanList(in.SubjectAreas)
		} else if in.SubjectArea != nil {
			t.SubjectAreas = cleanList([]string{*in.SubjectArea})
		}
		if in.Room != nil {
			t.Room = optionalText(*in.Room)
		}
		if in.GradeLevels != nil {
			t.GradeLevels = in.GradeLevels
		}
	case RoleParent:
		if in.StudentIDs != nil {
			profile.Guardian.StudentIDs = dedupe(in.StudentIDs)
		}
	case RoleAdmin:
		if in.Department != nil {
			profile.Admin.Department = optionalText(*in.Department)
		}
	}

	return nil
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func optionalText(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return dedupe(out)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

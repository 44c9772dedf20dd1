package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinGradeLevel = 1
	MaxGradeLevel = 12
)

// Profile holds the role specific attributes of an account. Exactly one of
// the detail pointers is set and it must match Role.
type Profile struct {
	AccountID string           `json:"account_id"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Role      Role             `json:"role"`
	Student   *StudentDetails  `json:"student,omitempty"`
	Teacher   *TeacherDetails  `json:"teacher,omitempty"`
	Guardian  *GuardianDetails `json:"guardian,omitempty"`
	Admin     *AdminDetails    `json:"admin,omitempty"`
}

type StudentDetails struct {
	GradeLevel     int               `json:"grade_level"`
	HasIEP         bool              `json:"has_iep"`
	IEPSummary     *string           `json:"iep_summary,omitempty"`
	Accommodations map[string]bool   `json:"accommodations,omitempty"`
	IEPGoals       map[string]string `json:"iep_goals,omitempty"`
	LastIEPReview  *time.Time        `json:"last_iep_review,omitempty"`
	// GuardianIDs is populated from guardian links on read.
	GuardianIDs []string `json:"guardian_ids"`
}

type TeacherDetails struct {
	SubjectAreas []string `json:"subject_areas"`
	Room         *string  `json:"room,omitempty"`
	GradeLevels  []int    `json:"grade_levels,omitempty"`
}

type GuardianDetails struct {
	StudentIDs []string `json:"student_ids"`
}

type AdminDetails struct {
	Department *string `json:"department,omitempty"`
}

// Validate checks the variant invariant and the per-variant bounds.
func (p Profile) Validate() error {
	if !p.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidProfile, p.Role)
	}

	populated := 0
	for _, set := range []bool{p.Student != nil, p.Teacher != nil, p.Guardian != nil, p.Admin != nil} {
		if set {
			populated++
		}
	}
	if populated != 1 {
		return fmt.Errorf("%w: exactly one role variant must be set", ErrInvalidProfile)
	}

	switch p.Role {
	case RoleStudent:
		if p.Student == nil {
			return fmt.Errorf("%w: student details missing", ErrInvalidProfile)
		}
		if !validGrade(p.Student.GradeLevel) {
			return fmt.Errorf("%w: grade_level must be between %d and %d", ErrInvalidProfile, MinGradeLevel, MaxGradeLevel)
		}
		if !p.Student.HasIEP && p.Student.IEPSummary != nil && strings.TrimSpace(*p.Student.IEPSummary) != "" {
			return fmt.Errorf("%w: iep_summary requires has_iep", ErrInvalidProfile)
		}
	case RoleTeacher:
		if p.Teacher == nil {
			return fmt.Errorf("%w: teacher details missing", ErrInvalidProfile)
		}
		if len(p.Teacher.SubjectAreas) == 0 {
			return fmt.Errorf("%w: at least one subject area is required", ErrInvalidProfile)
		}
		for _, subject := range p.Teacher.SubjectAreas {
			if strings.TrimSpace(subject) == "" {
				return fmt.Errorf("%w: subject areas cannot be blank", ErrInvalidProfile)
			}
		}
		for _, grade := range p.Teacher.GradeLevels {
			if !validGrade(grade) {
				return fmt.Errorf("%w: grade_levels must be between %d and %d", ErrInvalidProfile, MinGradeLevel, MaxGradeLevel)
			}
		}
	case RoleParent:
		if p.Guardian == nil {
			return fmt.Errorf("%w: guardian details missing", ErrInvalidProfile)
		}
	case RoleAdmin:
		if p.Admin == nil {
			return fmt.Errorf("%w: admin details missing", ErrInvalidProfile)
		}
	}

	return nil
}

func validGrade(grade int) bool {
	return grade >= MinGradeLevel && grade <= MaxGradeLevel
}

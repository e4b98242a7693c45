package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type studentProfileRepository interface {
	GetProfileByID(ctx context.Context, id string) (*models.StudentProfile, error)
	GetProfileByUserID(ctx context.Context, userID string) (*models.StudentProfile, error)
	StudentNumberExists(ctx context.Context, studentNumber string) (bool, error)
	CreateProfile(ctx context.Context, profile *models.StudentProfile) error
	UpdateAcademicRecord(ctx context.Context, profile *models.StudentProfile) error
	ListPriorTermGrades(ctx context.Context, studentID string) ([]models.SubjectGrade, error)
	ReplaceTermGrades(ctx context.Context, studentID, term string, grades []models.SubjectGrade) error
}

// RegisterStudentRequest is the self-service sign-up payload.
type RegisterStudentRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=8"`
	StudentNumber string `json:"student_number" validate:"required,max=32"`
	FirstName     string `json:"first_name" validate:"required"`
	LastName      string `json:"last_name" validate:"required"`
	Course        string `json:"course" validate:"required"`
	YearLevel     int    `json:"year_level" validate:"required,min=1,max=6"`
}

// RegisterStaffRequest creates an office account.
type RegisterStaffRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=8"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=admin osas_staff guidance_counselor coach_adviser"`
}

// AcademicRecordRequest replaces the registrar-maintained part of a student profile.
type AcademicRecordRequest struct {
	Units                  int                     `json:"units" validate:"min=0,max=40"`
	CurrentGWA             *float64                `json:"current_gwa" validate:"omitempty,min=1,max=5"`
	EnrollmentStatus       models.EnrollmentStatus `json:"enrollment_status" validate:"required,oneof=enrolled not_enrolled on_leave graduated"`
	MonthlyHouseholdIncome *float64                `json:"monthly_household_income" validate:"omitempty,min=0"`
	IndigencyValidUntil    *time.Time              `json:"indigency_certificate_valid_until"`
	PerformingGroup        *string                 `json:"performing_group"`
	MembershipStartedAt    *time.Time              `json:"membership_started_at"`
	Term                   string                  `json:"term" validate:"required_with=Grades"`
	Grades                 []SubjectGradeInput     `json:"grades" validate:"omitempty,dive"`
}

// SubjectGradeInput is one prior-term grade row.
type SubjectGradeInput struct {
	SubjectCode string             `json:"subject_code" validate:"required"`
	Grade       *float64           `json:"grade" validate:"omitempty,min=1,max=5"`
	Remark      models.GradeRemark `json:"remark" validate:"required,oneof=PASSED FAILED INC DRP DEF"`
}

// Registration is the result of a student sign-up.
type Registration struct {
	User    *models.User           `json:"user"`
	Profile *models.StudentProfile `json:"profile"`
}

// UserService handles account registration and lookups.
type UserService struct {
	tx        txRunner
	repo      userRepository
	profiles  studentProfileRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(tx txRunner, repo userRepository, profiles studentProfileRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if tx == nil {
		tx = noTx{}
	}
	return &UserService{tx: tx, repo: repo, profiles: profiles, validator: validate, logger: logger}
}

// RegisterStudent creates the user account and its student profile atomically.
func (s *UserService) RegisterStudent(ctx context.Context, req RegisterStudentRequest) (*Registration, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.StudentNumber = strings.TrimSpace(req.StudentNumber)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid registration payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		FullName:     strings.TrimSpace(req.FirstName + " " + req.LastName),
		Role:         models.RoleStudent,
		Active:       true,
		PasswordHash: string(hash),
	}
	profile := &models.StudentProfile{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		StudentNumber:    req.StudentNumber,
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		Course:           strings.TrimSpace(req.Course),
		YearLevel:        req.YearLevel,
		EnrollmentStatus: models.EnrollmentEnrolled,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ensureEmailAvailable(ctx, user.Email); err != nil {
			return err
		}
		taken, err := s.profiles.StudentNumberExists(ctx, profile.StudentNumber)
		if err != nil {
			return appErrors.Internal(err, "failed to check student number")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrConflict, "student number already registered")
		}
		if err := s.repo.Create(ctx, user); err != nil {
			return appErrors.Internal(err, "failed to create user")
		}
		if err := s.profiles.CreateProfile(ctx, profile); err != nil {
			return appErrors.Internal(err, "failed to create student profile")
		}
		recordAudit(ctx, s.repo, s.logger, &models.Actor{UserID: user.ID, Role: user.Role}, models.AuditActionUserCreate, "users", user.ID, nil,
			map[string]interface{}{"email": user.Email, "role": user.Role, "student_number": profile.StudentNumber})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Registration{User: user, Profile: profile}, nil
}

// RegisterStaff creates an office account. Only admins may do this.
func (s *UserService) RegisterStaff(ctx context.Context, req RegisterStaffRequest, actor *models.Actor) (*models.User, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can create staff accounts")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid staff payload")
	}
	if !req.Role.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be a staff role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Active:       true,
		PasswordHash: string(hash),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ensureEmailAvailable(ctx, user.Email); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, user); err != nil {
			return appErrors.Internal(err, "failed to create user")
		}
		recordAudit(ctx, s.repo, s.logger, actor, models.AuditActionUserCreate, "users", user.ID, nil,
			map[string]interface{}{"email": user.Email, "role": user.Role})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter, actor *models.Actor) ([]models.User, *models.Pagination, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can list users")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID. Users may read their own account; admins may read any.
func (s *UserService) Get(ctx context.Context, id string, actor *models.Actor) (*models.User, error) {
	if actor == nil || (actor.Role != models.RoleAdmin && actor.UserID != id) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this user")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return user, nil
}

// Profile returns the student profile of the acting student, or any profile for staff.
func (s *UserService) Profile(ctx context.Context, profileID string, actor *models.Actor) (*models.StudentProfile, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	var (
		profile *models.StudentProfile
		err     error
	)
	switch {
	case actor.Role == models.RoleStudent:
		profile, err = s.profiles.GetProfileByUserID(ctx, actor.UserID)
		if err == nil && profileID != "" && profile.ID != profileID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only view their own profile")
		}
	case actor.Role.IsStaff():
		profile, err = s.profiles.GetProfileByID(ctx, profileID)
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view profiles")
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Internal(err, "failed to load student profile")
	}
	return profile, nil
}

// PriorTermGrades lists the grades eligibility reads for a profile.
func (s *UserService) PriorTermGrades(ctx context.Context, profileID string, actor *models.Actor) ([]models.SubjectGrade, error) {
	profile, err := s.Profile(ctx, profileID, actor)
	if err != nil {
		return nil, err
	}
	grades, err := s.profiles.ListPriorTermGrades(ctx, profile.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load grades")
	}
	if grades == nil {
		grades = []models.SubjectGrade{}
	}
	return grades, nil
}

// UpdateAcademicRecord stores registrar data for a student. OSAS staff and admins only.
func (s *UserService) UpdateAcademicRecord(ctx context.Context, profileID string, req AcademicRecordRequest, actor *models.Actor) (*models.StudentProfile, error) {
	if actor == nil || (actor.Role != models.RoleOSASStaff && actor.Role != models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only OSAS staff can update academic records")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid academic record payload")
	}
	for _, g := range req.Grades {
		numeric := g.Remark == models.RemarkPassed || g.Remark == models.RemarkFailed
		if numeric != (g.Grade != nil) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "grade "+g.SubjectCode+" must carry a number only when passed or failed")
		}
	}

	var updated *models.StudentProfile
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		profile, err := s.profiles.GetProfileByID(ctx, profileID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
			}
			return appErrors.Internal(err, "failed to load student profile")
		}
		before := *profile
		profile.Units = req.Units
		profile.CurrentGWA = req.CurrentGWA
		profile.EnrollmentStatus = req.EnrollmentStatus
		profile.MonthlyHouseholdIncome = req.MonthlyHouseholdIncome
		profile.IndigencyValidUntil = req.IndigencyValidUntil
		profile.PerformingGroup = req.PerformingGroup
		profile.MembershipStartedAt = req.MembershipStartedAt
		if err := s.profiles.UpdateAcademicRecord(ctx, profile); err != nil {
			return appErrors.Internal(err, "failed to update academic record")
		}
		if req.Term != "" {
			grades := make([]models.SubjectGrade, 0, len(req.Grades))
			for _, g := range req.Grades {
				grades = append(grades, models.SubjectGrade{SubjectCode: strings.ToUpper(strings.TrimSpace(g.SubjectCode)), Grade: g.Grade, Remark: g.Remark})
			}
			if err := s.profiles.ReplaceTermGrades(ctx, profile.ID, req.Term, grades); err != nil {
				return appErrors.Internal(err, "failed to store grades")
			}
		}
		recordAudit(ctx, s.repo, s.logger, actor, models.AuditActionProfileUpdate, "student_profiles", profile.ID,
			map[string]interface{}{"units": before.Units, "current_gwa": before.CurrentGWA, "enrollment_status": before.EnrollmentStatus},
			map[string]interface{}{"units": profile.Units, "current_gwa": profile.CurrentGWA, "enrollment_status": profile.EnrollmentStatus, "term": req.Term})
		updated = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *UserService) ensureEmailAvailable(ctx context.Context, email string) error {
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return appErrors.Internal(err, "failed to check email uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	return nil
}

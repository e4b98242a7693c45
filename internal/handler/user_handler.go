package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/service"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type userService interface {
	RegisterStaff(ctx context.Context, req service.RegisterStaffRequest, actor *models.Actor) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter, actor *models.Actor) ([]models.User, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.Actor) (*models.User, error)
	Profile(ctx context.Context, profileID string, actor *models.Actor) (*models.StudentProfile, error)
	PriorTermGrades(ctx context.Context, profileID string, actor *models.Actor) ([]models.SubjectGrade, error)
	UpdateAcademicRecord(ctx context.Context, profileID string, req service.AcademicRecordRequest, actor *models.Actor) (*models.StudentProfile, error)
}

// UserHandler handles account and student profile endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Description List users with pagination and filtering
// @Tags Users
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param role query string false "Role filter"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var query dto.UserQuery
	if !bindQuery(c, &query) {
		return
	}

	users, pagination, err := h.service.List(c.Request.Context(), query.Filter(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	listJSON(c, users, pagination)
}

// Get godoc
// @Summary Get user
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	user, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// CreateStaff godoc
// @Summary Create staff account
// @Description Admins create reviewer and office accounts
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body service.RegisterStaffRequest true "Staff payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users [post]
func (h *UserHandler) CreateStaff(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req service.RegisterStaffRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}

	user, err := h.service.RegisterStaff(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, user)
}

// Profile godoc
// @Summary Get student profile
// @Description Students see their own profile, staff see any
// @Tags Students
// @Produce json
// @Param id path string true "Profile ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *UserHandler) Profile(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	profile, err := h.service.Profile(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Grades godoc
// @Summary List prior-term grades
// @Tags Students
// @Produce json
// @Param id path string true "Profile ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/grades [get]
func (h *UserHandler) Grades(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	grades, err := h.service.PriorTermGrades(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// UpdateAcademicRecord godoc
// @Summary Update academic record
// @Description Registrar-maintained fields and prior-term grades
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Profile ID"
// @Param payload body service.AcademicRecordRequest true "Academic record"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/academic-record [put]
func (h *UserHandler) UpdateAcademicRecord(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req service.AcademicRecordRequest
	if !bindJSON(c, &req, "invalid academic record") {
		return
	}
	profile, err := h.service.UpdateAcademicRecord(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

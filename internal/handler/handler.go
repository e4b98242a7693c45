package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

// requireActor returns the authenticated caller or writes a 401.
func requireActor(c *gin.Context) (*models.Actor, bool) {
	actor := middleware.Actor(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return actor, true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Invalid(err, message))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid query parameters"))
		return false
	}
	return true
}

func pageMeta(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

// listJSON writes a collection with the request metadata attached.
func listJSON(c *gin.Context, data interface{}, pagination *models.Pagination) {
	response.JSON(c, http.StatusOK, data, pagination, middleware.ExtractMeta(c))
}

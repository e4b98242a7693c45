package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

// UUIDParams answers 404 for any ":id" or ":*_id" path parameter that is not a
// UUID, so malformed identifiers never reach the database.
func UUIDParams() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range c.Params {
			if p.Key != "id" && !strings.HasSuffix(p.Key, "_id") {
				continue
			}
			if _, err := uuid.Parse(p.Value); err != nil || len(p.Value) != 36 {
				response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "resource not found"))
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

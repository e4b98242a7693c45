package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/pkg/middleware/requestid"
)

var (
	allowHeaders  = strings.Join([]string{"Authorization", "Content-Type", "X-Requested-With", requestid.Header}, ", ")
	allowMethods  = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions}, ", ")
	exposeHeaders = strings.Join([]string{"Content-Disposition", requestid.Header}, ", ")
)

// origins is the browser origin allowlist. A nil set admits every origin.
type origins map[string]struct{}

func newOrigins(list []string) origins {
	if len(list) == 0 {
		return nil
	}
	set := make(origins, len(list))
	for _, origin := range list {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return set
}

func (o origins) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if o == nil {
		return true
	}
	_, ok := o[strings.TrimRight(origin, "/")]
	return ok
}

// New returns a CORS middleware for the portal's browser clients. Preflights
// from unknown origins are refused; an empty allowlist admits any origin.
func New(allowedOrigins []string) gin.HandlerFunc {
	allowed := newOrigins(allowedOrigins)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		preflight := c.Request.Method == http.MethodOptions
		h := c.Writer.Header()
		h.Set("Vary", "Origin")

		if !allowed.allows(origin) {
			if origin != "" && preflight {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Expose-Headers", exposeHeaders)
		if preflight {
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

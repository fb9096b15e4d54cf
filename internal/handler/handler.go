package handler

import (
	"net/http"

	"templeadmin/internal/authz"
	"templeadmin/internal/middleware"
	"templeadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, err error) {
	code, resp := response.FromError(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, resp)
}

// actorOrAbort returns the authenticated actor, answering 401 when the route
// was mounted without Authenticate.
func actorOrAbort(c *gin.Context) (authz.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "authentication required"))
	}
	return actor, ok
}

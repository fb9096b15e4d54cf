package handler

import (
	"net/http"

	"templeadmin/internal/service"
	"templeadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

type GrantHandler struct {
	grantService service.GrantService
}

func NewGrantHandler(grantService service.GrantService) *GrantHandler {
	return &GrantHandler{grantService: grantService}
}

func (h *GrantHandler) RegisterRoutes(router *gin.RouterGroup, auth gin.HandlerFunc) {
	perms := router.Group("/api/permissions")
	perms.Use(auth)
	{
		perms.GET("", h.ListPermissions)
	}

	users := router.Group("/api/users")
	users.Use(auth)
	{
		users.GET("/:id/grants", h.ListGrants)
		users.PUT("/:id/grants", h.SetGrant)
	}
}

// ListPermissions godoc
// @Summary      List permissions
// @Description  The permission catalog
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.PermissionResponse}
// @Failure      403  {object}  response.Response
// @Router       /api/permissions [get]
func (h *GrantHandler) ListPermissions(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	perms, err := h.grantService.ListPermissions(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}

// ListGrants godoc
// @Summary      List user grants
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=[]service.GrantResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id}/grants [get]
func (h *GrantHandler) ListGrants(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	grants, err := h.grantService.ListGrants(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, grants))
}

// SetGrant godoc
// @Summary      Set user grant
// @Description  Sets one permission's access level; level none revokes it
// @Tags         permissions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true  "User ID"
// @Param        payload  body      service.SetGrantRequest  true  "Permission and level"
// @Success      200      {object}  response.Response{data=[]service.GrantResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/users/{id}/grants [put]
func (h *GrantHandler) SetGrant(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req service.SetGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	grants, err := h.grantService.SetGrant(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, grants))
}

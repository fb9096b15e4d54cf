package handler

import (
	"context"
	"net/http"

	"templeadmin/internal/authz"
	"templeadmin/internal/service"
	"templeadmin/pkg/pagination"
	"templeadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
	queryService    service.QueryService
}

func NewApprovalHandler(approvalService service.ApprovalService, queryService service.QueryService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService, queryService: queryService}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup, auth gin.HandlerFunc) {
	approvals := router.Group("/api/approvals")
	approvals.Use(auth)
	{
		approvals.GET("/pending", h.ListPending)
		approvals.GET("/processed", h.ListProcessed)
		approvals.GET("/stats", h.Stats)
		approvals.GET("/:id", h.GetRequest)
		approvals.PUT("/:id/approve", h.Approve)
		approvals.PUT("/:id/reject", h.Reject)
		approvals.POST("/bulk", h.BulkAction)
	}
}

// ListPending godoc
// @Summary      List pending requests
// @Description  Pending requests of the caller's temple, oldest submitted first
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Param        search  query     string  false  "Match requester name, contact or reference"
// @Success      200     {object}  response.Response{data=response.Page{items=[]service.ApprovalRequestResponse}}
// @Failure      403     {object}  response.Response
// @Router       /api/approvals/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	h.list(c, h.queryService.ListPending)
}

// ListProcessed godoc
// @Summary      List processed requests
// @Description  Approved, rejected and cancelled requests, most recently updated first
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Param        search  query     string  false  "Match requester name, contact or reference"
// @Param        status  query     string  false  "approved, rejected or cancelled"
// @Success      200     {object}  response.Response{data=response.Page{items=[]service.ApprovalRequestResponse}}
// @Failure      403     {object}  response.Response
// @Router       /api/approvals/processed [get]
func (h *ApprovalHandler) ListProcessed(c *gin.Context) {
	h.list(c, h.queryService.ListProcessed)
}

func (h *ApprovalHandler) list(c *gin.Context, fetch func(context.Context, authz.Actor, service.ListQuery) (service.RequestPage, error)) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	page, err := fetch(c.Request.Context(), actor, service.ListQuery{
		Page:   p.Page,
		Limit:  p.Limit,
		Search: p.Search,
		Status: c.Query("status"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paged(page.Items, p.Page, p.Limit, page.Total))
}

// Stats godoc
// @Summary      Approval statistics
// @Description  Counts per status and log actions of the trailing 7 days
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Success      200     {object}  response.Response{data=service.ApprovalStatsResponse}
// @Failure      403     {object}  response.Response
// @Router       /api/approvals/stats [get]
func (h *ApprovalHandler) Stats(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	stats, err := h.queryService.Stats(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// GetRequest godoc
// @Summary      Get request
// @Description  A request with its approval history, newest entry first
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id      path      string  true  "Request ID"
// @Success      200     {object}  response.Response{data=service.ApprovalDetailResponse}
// @Failure      404     {object}  response.Response
// @Router       /api/approvals/{id} [get]
func (h *ApprovalHandler) GetRequest(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	detail, err := h.queryService.GetRequest(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, detail))
}

// Approve godoc
// @Summary      Approve request
// @Description  Approves a pending request unless its slot is already booked
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true   "Request ID"
// @Param        payload  body      service.ApproveRequestDTO  false  "Admin notes"
// @Success      200      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/approve [put]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req service.ApproveRequestDTO
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
			return
		}
	}

	result, err := h.approvalService.Approve(c.Request.Context(), actor, c.Param("id"), req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Reject godoc
// @Summary      Reject request
// @Description  Rejects a pending request; a reason is required
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Request ID"
// @Param        payload  body      service.RejectRequestDTO  true  "Reason and notes"
// @Success      200      {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/reject [put]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req service.RejectRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.approvalService.Reject(c.Request.Context(), actor, c.Param("id"), req.Reason, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// BulkAction godoc
// @Summary      Bulk approve or reject
// @Description  Applies the action to each id independently and reports per-id failures
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.BulkActionDTO  true  "Action and request ids"
// @Success      200      {object}  response.Response{data=service.BulkActionResult}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/approvals/bulk [post]
func (h *ApprovalHandler) BulkAction(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req service.BulkActionDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.approvalService.BulkAction(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

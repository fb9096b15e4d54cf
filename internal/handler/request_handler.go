package handler

import (
	"net/http"

	"templeadmin/internal/middleware"
	"templeadmin/internal/service"
	"templeadmin/pkg/response"

	"github.com/gin-gonic/gin"
)

// RequestHandler serves the public submitter endpoints. Submitters are
// identified by their contact, not by a token.
type RequestHandler struct {
	approvalService service.ApprovalService
	queryService    service.QueryService
}

func NewRequestHandler(approvalService service.ApprovalService, queryService service.QueryService) *RequestHandler {
	return &RequestHandler{approvalService: approvalService, queryService: queryService}
}

// RegisterRoutes mounts the public routes. optionalAuth may attach a staff
// actor but never rejects a request.
func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup, optionalAuth gin.HandlerFunc) {
	requests := router.Group("/api/temples/:tenantID/requests")
	requests.Use(optionalAuth)
	{
		requests.POST("", h.Submit)
		requests.GET("/mine", h.ListMine)
		requests.POST("/:id/cancel", h.Cancel)
	}
}

// Submit godoc
// @Summary      Submit request
// @Description  Creates a pending request; scheduling conflicts are checked only at approval
// @Tags         requests
// @Accept       json
// @Produce      json
// @Param        tenantID  path      string                    true  "Temple ID"
// @Param        payload   body      service.SubmitRequestDTO  true  "Candidate request"
// @Success      201       {object}  response.Response{data=service.SubmitResponse}
// @Failure      400       {object}  response.Response
// @Failure      404       {object}  response.Response
// @Router       /api/temples/{tenantID}/requests [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	var req service.SubmitRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	// staff submitting on someone's behalf are recorded by user id
	if actor, ok := middleware.ActorFrom(c); ok {
		req.SubmittedBy = actor.ID()
	}

	result, err := h.approvalService.Submit(c.Request.Context(), c.Param("tenantID"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListMine godoc
// @Summary      List my requests
// @Description  Requests submitted with the given contact
// @Tags         requests
// @Produce      json
// @Param        tenantID  path      string  true  "Temple ID"
// @Param        contact   query     string  true  "Phone number or email used at submission"
// @Success      200       {object}  response.Response{data=[]service.ApprovalRequestResponse}
// @Failure      400       {object}  response.Response
// @Router       /api/temples/{tenantID}/requests/mine [get]
func (h *RequestHandler) ListMine(c *gin.Context) {
	items, err := h.queryService.ListMyRequests(c.Request.Context(), c.Param("tenantID"), c.Query("contact"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, items))
}

// Cancel godoc
// @Summary      Cancel request
// @Description  Withdraws a pending request; contact must match the submitter
// @Tags         requests
// @Accept       json
// @Produce      json
// @Param        tenantID  path      string                    true  "Temple ID"
// @Param        id        path      string                    true  "Request ID"
// @Param        payload   body      service.CancelRequestDTO  true  "Submitter contact and reason"
// @Success      200       {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      404       {object}  response.Response
// @Failure      409       {object}  response.Response
// @Router       /api/temples/{tenantID}/requests/{id}/cancel [post]
func (h *RequestHandler) Cancel(c *gin.Context) {
	var req service.CancelRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.approvalService.Cancel(c.Request.Context(), c.Param("tenantID"), c.Param("id"), req.Contact, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

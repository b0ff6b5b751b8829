package handler

import (
	"net/http"

	"stockroom/internal/middleware"
	"stockroom/internal/model"
	"stockroom/internal/service"
	"stockroom/pkg/pagination"
	"stockroom/pkg/response"

	"github.com/gin-gonic/gin"
)

type HandoverHandler struct {
	handoverService service.HandoverService
}

func NewHandoverHandler(handoverService service.HandoverService) *HandoverHandler {
	return &HandoverHandler{handoverService: handoverService}
}

func (h *HandoverHandler) RegisterRoutes(router *gin.RouterGroup) {
	handovers := router.Group("/api/handovers")
	{
		handovers.GET("", middleware.RequirePermission(model.PermHandoverRequest), h.ListHandovers)
		handovers.POST("", middleware.RequirePermission(model.PermHandoverRequest), h.RequestHandover)
		handovers.POST("/direct", middleware.RequirePermission(model.PermHandoverManage), h.DirectHandover)
		handovers.GET("/:id", middleware.RequirePermission(model.PermHandoverRequest), h.GetHandover)
		handovers.POST("/:id/approve", middleware.RequirePermission(model.PermHandoverManage), h.ApproveHandover)
		handovers.POST("/:id/reject", middleware.RequirePermission(model.PermHandoverManage), h.RejectHandover)
		handovers.POST("/:id/return", middleware.RequirePermission(model.PermHandoverReturn), h.ReturnHandover)
		handovers.DELETE("/:id", middleware.RequirePermission(model.PermHandoverManage), h.DeleteHandover)
	}
}

// ListHandovers retrieves paginated handovers with optional filters
// @Summary      List handovers
// @Tags         handovers
// @Security     BearerAuth
// @Produce      json
// @Param        status       query     string  false  "Filter by status (pending, handed_over, returned, rejected)"
// @Param        product_id   query     string  false  "Filter by product ID"
// @Param        employee_id  query     string  false  "Filter by employee ID"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Success      200          {object}  response.Response{data=[]service.HandoverResponse}
// @Failure      400          {object}  response.Response
// @Router       /api/handovers [get]
func (h *HandoverHandler) ListHandovers(c *gin.Context) {
	params := pagination.Parse(c)
	filter := service.HandoverListFilter{
		Status:     c.Query("status"),
		ProductID:  c.Query("product_id"),
		EmployeeID: c.Query("employee_id"),
		Page:       params.Page,
		Limit:      params.Limit,
	}

	// Employees only see their own handovers.
	if !model.RoleHasPermission(c.GetString("userRole"), model.PermHandoverManage) {
		filter.EmployeeID = c.GetString("userID")
	}

	handovers, total, err := h.handoverService.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paged(http.StatusOK, handovers, params.Page, params.Limit, total))
}

// RequestHandover creates a pending handover request
// @Summary      Request handover
// @Description  Creates a pending handover request for the calling employee. Stock is not debited until approval.
// @Tags         handovers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RequestHandoverRequest  true  "Handover Request Payload"
// @Success      201      {object}  response.Response{data=service.HandoverResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/handovers [post]
func (h *HandoverHandler) RequestHandover(c *gin.Context) {
	var req service.RequestHandoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	handover, err := h.handoverService.Request(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, handover))
}

// DirectHandover creates a handover already in handed_over state
// @Summary      Direct handover
// @Description  Creates a handover directly in handed_over state, debiting stock immediately. Manager only.
// @Tags         handovers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.DirectHandoverRequest  true  "Direct Handover Payload"
// @Success      201      {object}  response.Response{data=service.HandoverResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/handovers/direct [post]
func (h *HandoverHandler) DirectHandover(c *gin.Context) {
	var req service.DirectHandoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	handover, err := h.handoverService.DirectHandover(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, handover))
}

// GetHandover retrieves a single handover by ID
// @Summary      Get handover
// @Tags         handovers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Handover ID"
// @Success      200  {object}  response.Response{data=service.HandoverResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/handovers/{id} [get]
func (h *HandoverHandler) GetHandover(c *gin.Context) {
	handover, err := h.handoverService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, handover))
}

// ApproveHandover approves a pending handover and debits stock
// @Summary      Approve handover
// @Description  Transitions a pending handover to handed_over and debits the product's stock atomically
// @Tags         handovers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                          true  "Handover ID"
// @Param        payload  body      service.ApproveHandoverRequest  false "Approval Payload"
// @Success      200      {object}  response.Response{data=service.HandoverResponse}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/handovers/{id}/approve [post]
func (h *HandoverHandler) ApproveHandover(c *gin.Context) {
	var req service.ApproveHandoverRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	handover, err := h.handoverService.Approve(c.Request.Context(), c.GetString("userID"), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, handover))
}

// RejectHandover rejects a pending handover
// @Summary      Reject handover
// @Description  Transitions a pending handover to rejected. A non-empty reason is required; stock is untouched.
// @Tags         handovers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true  "Handover ID"
// @Param        payload  body      service.RejectHandoverRequest  true  "Rejection Payload"
// @Success      200      {object}  response.Response{data=service.HandoverResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/handovers/{id}/reject [post]
func (h *HandoverHandler) RejectHandover(c *gin.Context) {
	var req service.RejectHandoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	handover, err := h.handoverService.Reject(c.Request.Context(), c.GetString("userID"), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, handover))
}

// ReturnHandover returns a handed-over handover and credits stock
// @Summary      Return handover
// @Description  Transitions a handed_over handover to returned and credits the full quantity back. Only the owning employee or a manager may return.
// @Tags         handovers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true  "Handover ID"
// @Param        payload  body      service.ReturnHandoverRequest  true  "Return Payload"
// @Success      200      {object}  response.Response{data=service.HandoverResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/handovers/{id}/return [post]
func (h *HandoverHandler) ReturnHandover(c *gin.Context) {
	var req service.ReturnHandoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	canManage := model.RoleHasPermission(c.GetString("userRole"), model.PermHandoverManage)
	handover, err := h.handoverService.Return(c.Request.Context(), c.GetString("userID"), canManage, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, handover))
}

// DeleteHandover deletes a handover record
// @Summary      Delete handover
// @Description  Deletes a handover in any state. Deleting a handed_over record credits its quantity back to stock.
// @Tags         handovers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Handover ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/handovers/{id} [delete]
func (h *HandoverHandler) DeleteHandover(c *gin.Context) {
	if err := h.handoverService.Delete(c.Request.Context(), c.GetString("userID"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"deleted": true}))
}

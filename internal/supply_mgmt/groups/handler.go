package groups

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/groups", h.CreateGroup)
	r.GET("/groups", h.ListGroups)
	r.GET("/groups/:group_number", h.GetGroup)
	r.PUT("/groups/:group_number", h.UpdateGroup)
	r.DELETE("/groups/:group_number", h.DisableGroup)

	r.POST("/groups/:group_number/delegates", h.AddDelegate)
	r.GET("/groups/:group_number/delegates", h.ListDelegates)
	r.DELETE("/delegates/:delegate_number", h.RemoveDelegate)
}

func (h *Handler) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, newErrDTO(ErrInvalid("invalid json or missing required fields")))
		return
	}
	res, err := h.svc.CreateGroup(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetGroup(c *gin.Context) {
	res, err := h.svc.GetGroup(c.Request.Context(), c.Param("group_number"))
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListGroups(c *gin.Context) {
	all := c.Query("all") == "true" || c.Query("all") == "1"
	res, err := h.svc.ListGroups(c.Request.Context(), all)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateGroup(c *gin.Context) {
	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, newErrDTO(ErrInvalid("invalid json")))
		return
	}
	res, err := h.svc.UpdateGroup(c.Request.Context(), c.Param("group_number"), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DisableGroup(c *gin.Context) {
	if err := h.svc.DisableGroup(c.Request.Context(), c.Param("group_number")); err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AddDelegate(c *gin.Context) {
	var req CreateDelegateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, newErrDTO(ErrInvalid("invalid json or missing required fields")))
		return
	}
	res, err := h.svc.AddDelegate(c.Request.Context(), c.Param("group_number"), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListDelegates(c *gin.Context) {
	res, err := h.svc.ListDelegates(c.Request.Context(), c.Param("group_number"))
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RemoveDelegate(c *gin.Context) {
	if err := h.svc.RemoveDelegate(c.Request.Context(), c.Param("delegate_number")); err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// ===== helpers =====

type errDTO struct {
	Error *APIError `json:"error"`
}

func newErrDTO(err error) errDTO {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return errDTO{Error: apiErr}
	}
	return errDTO{Error: ErrInternal(err.Error())}
}

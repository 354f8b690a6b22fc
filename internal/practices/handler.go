package practices

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/practices", h.CreatePractice)
	r.GET("/practices", h.ListPractices)
	r.GET("/practices/:practice_id", h.GetPractice)
	r.PUT("/practices/:practice_id", h.UpdatePractice)

	r.POST("/sessions", h.RecordSession)
	r.GET("/sessions", h.ListSessions)
}

func (h *Handler) CreatePractice(c *gin.Context) {
	var req CreatePracticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, newErrDTO(ErrInvalid("invalid json or missing required fields")))
		return
	}
	res, err := h.svc.CreatePractice(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetPractice(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("practice_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, newErrDTO(ErrInvalid("practice_id must be numeric")))
		return
	}
	res, err := h.svc.GetPractice(c.Request.Context(), id)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListPractices(c *gin.Context) {
	all := c.Query("all") == "true" || c.Query("all") == "1"
	res, err := h.svc.ListPractices(c.Request.Context(), all)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdatePractice(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("practice_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, newErrDTO(ErrInvalid("practice_id must be numeric")))
		return
	}
	var req UpdatePracticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, newErrDTO(ErrInvalid("invalid json")))
		return
	}
	res, err := h.svc.UpdatePractice(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) RecordSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, newErrDTO(ErrInvalid("invalid json or missing required fields")))
		return
	}
	res, created, err := h.svc.RecordSession(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (h *Handler) ListSessions(c *gin.Context) {
	q := SessionListQuery{
		Limit:  parseIntDefault(c.Query("limit"), DefaultPageLimit),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}
	if v := c.Query("group_id"); v != "" {
		q.GroupNumber = &v
	}
	if v := c.Query("practice_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, newErrDTO(ErrInvalid("practice_id must be numeric")))
			return
		}
		q.PracticeID = &id
	}
	if v := c.Query("from"); v != "" {
		q.From = &v
	}
	if v := c.Query("to"); v != "" {
		q.To = &v
	}

	list, total, err := h.svc.ListSessions(c.Request.Context(), q)
	if err != nil {
		c.JSON(toHTTPStatus(err), newErrDTO(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list, "total": total})
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

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

package requests

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// 申請の提出・照会
	r.POST("/requests", h.CreateRequest)
	r.GET("/requests", h.ListRequests)
	r.GET("/requests/:request_number", h.GetRequest)

	// 状態遷移＋明細配付数量の更新
	r.PUT("/requests/:request_number", h.UpdateRequest)
}

// POST /requests
func (h *Handler) CreateRequest(c *gin.Context) {
	var req CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrInvalid("invalid json or missing required fields")))
		return
	}
	res, err := h.svc.CreateRequest(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorBody(err))
		return
	}
	c.Header("Location", "/requests/"+res.Request.RequestNumber)
	c.JSON(http.StatusCreated, res)
}

// PUT /requests/:request_number
func (h *Handler) UpdateRequest(c *gin.Context) {
	var req UpdateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrInvalid("invalid json")))
		return
	}
	res, err := h.svc.UpdateRequest(c.Request.Context(), c.Param("request_number"), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /requests/:request_number
func (h *Handler) GetRequest(c *gin.Context) {
	res, err := h.svc.GetRequest(c.Request.Context(), c.Param("request_number"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /requests
func (h *Handler) ListRequests(c *gin.Context) {
	f := Filter{}
	if v := c.Query("group_id"); v != "" {
		f.GroupNumber = &v
	}
	if v := c.Query("requester_id"); v != "" {
		f.RequesterID = &v
	}
	if v := c.Query("state"); v != "" {
		st, ok := ParseState(v)
		if !ok {
			c.JSON(http.StatusBadRequest, errorBody(ErrInvalid("unknown state "+strconv.Quote(v))))
			return
		}
		f.State = &st
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}
	res, err := h.svc.ListRequests(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type errorDTO struct {
	Error *APIError `json:"error"`
}

func errorBody(err error) errorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return errorDTO{Error: api}
	}
	// 内部エラーの詳細はそのまま外に出さない
	return errorDTO{Error: ErrInternal("internal error")}
}

package loans

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// 貸出発行（単品／一括）
	r.POST("/loans", h.IssueLoan)

	// 返却登録
	r.POST("/loans/:loan_number/return", h.ReturnLoan)

	// 照会
	r.GET("/loans", h.ListLoans)
	r.GET("/loans/:loan_number", h.GetLoan)

	// 台帳CSV（Excel向け cp932）
	r.GET("/exports/loans.csv", h.ExportCSV)
}

// POST /loans
func (h *Handler) IssueLoan(c *gin.Context) {
	var req IssueLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrInvalid("invalid json or missing required fields")))
		return
	}
	res, err := h.svc.IssueLoan(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorBody(err))
		return
	}
	if res.Loan != nil {
		c.Header("Location", "/loans/"+res.Loan.LoanNumber)
	}
	c.JSON(http.StatusCreated, res)
}

// POST /loans/:loan_number/return
func (h *Handler) ReturnLoan(c *gin.Context) {
	var req ReturnLoanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody(ErrInvalid("invalid json")))
			return
		}
	}
	res, err := h.svc.ReturnLoan(c.Request.Context(), c.Param("loan_number"), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "loan": res})
}

// GET /loans/:loan_number （番号 or ULID）
func (h *Handler) GetLoan(c *gin.Context) {
	res, err := h.svc.GetLoan(c.Request.Context(), c.Param("loan_number"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /loans
func (h *Handler) ListLoans(c *gin.Context) {
	f := LoanFilter{}
	if v := c.Query("request_id"); v != "" {
		f.RequestNumber = &v
	}
	if v := c.Query("item_id"); v != "" {
		f.ItemNumber = &v
	}
	if v := c.Query("received_by"); v != "" {
		f.ReceivedBy = &v
	}
	if v := c.Query("returned"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Returned = &b
		}
	}
	p := Page{
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}
	res, err := h.svc.ListLoans(c.Request.Context(), f, p)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /exports/loans.csv
func (h *Handler) ExportCSV(c *gin.Context) {
	// 途中失敗で欠けたCSVを200で返さないよう、一度バッファに書き切ってから返す
	var buf bytes.Buffer
	if err := h.svc.ExportCSV(c.Request.Context(), &buf); err != nil {
		c.JSON(ToHTTPStatus(err), errorBody(err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="loans.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=Shift_JIS", buf.Bytes())
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

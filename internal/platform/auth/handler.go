package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct{ svc AuthService }

// RegisterRoutes: login のみ公開。アカウント管理は admin 限定。
func RegisterRoutes(r gin.IRouter, svc AuthService, secret []byte) {
	h := &AuthHandler{svc: svc}
	r.POST("/login", h.Login)

	admin := r.Group("/accounts", RequireAuth(secret), RequireRole(RoleAdmin))
	admin.POST("", h.Register)
	admin.GET("", h.ListAccounts)
	admin.DELETE("/:id", h.DeleteAccount)
	admin.PATCH("/:id", h.PatchAccount)
}

type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, err := h.svc.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "IDまたはパスワードが間違っています"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"message": "Login successful",
	})
}

type RegisterRequest struct {
	ID       string  `json:"id" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Role     *string `json:"role,omitempty"` // 未指定なら staff
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	role := RoleStaff
	if req.Role != nil && *req.Role != "" {
		role = *req.Role
	}

	if err := h.svc.Register(c.Request.Context(), req.ID, req.Password, role); err != nil {
		switch err {
		case ErrAlreadyExists:
			c.JSON(http.StatusConflict, gin.H{"error": "ID already exists"})
		case ErrInvalidRole:
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be admin, staff or delegate"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "registered"})
}

func (h *AuthHandler) ListAccounts(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": list})
}

func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	id := c.Param("id")

	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		if err == ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type PatchAccountRequest struct {
	NewID      *string `json:"new_id,omitempty"`
	IsDisabled *bool   `json:"is_disabled,omitempty"`
}

// PatchAccount: id変更 or 有効/無効の切替
func (h *AuthHandler) PatchAccount(c *gin.Context) {
	id := c.Param("id")

	var req PatchAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.NewID == nil && req.IsDisabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no changes"})
		return
	}

	if req.IsDisabled != nil {
		if err := h.svc.SetDisabled(c.Request.Context(), id, *req.IsDisabled); err != nil {
			if err == ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
			return
		}
	}

	if req.NewID != nil {
		if err := h.svc.ChangeID(c.Request.Context(), id, *req.NewID); err != nil {
			switch err {
			case ErrNotFound:
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			case ErrAlreadyExists:
				c.JSON(http.StatusConflict, gin.H{"error": "new id already exists"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
			}
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

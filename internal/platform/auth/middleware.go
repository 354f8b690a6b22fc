package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"
)

const (
	codeUnauthenticated = "UNAUTHENTICATED"
	codeForbidden       = "FORBIDDEN"
)

// 業務ハンドラと同じ {"error":{code,message}} 形式で返す
func abortAuth(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": msg}})
}

// Authorization: Bearer <token> からトークン本体を取り出す
func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// RequireAuth はトークンを検証し、sub と role を context に積む。
// role はこのシステムの閉じた権限集合（admin/staff/delegate）に
// 含まれないものを通さない
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, codeUnauthenticated, "missing or malformed Authorization header")
			return
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			// alg はHS256固定
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || token == nil || !token.Valid {
			abortAuth(c, http.StatusUnauthorized, codeUnauthenticated, "invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, codeUnauthenticated, "invalid claims")
			return
		}
		sub, ok := claims["sub"].(string)
		if !ok || sub == "" {
			abortAuth(c, http.StatusUnauthorized, codeUnauthenticated, "invalid claims")
			return
		}
		role, ok := claims["role"].(string)
		if !ok || !validRole(role) {
			abortAuth(c, http.StatusUnauthorized, codeUnauthenticated, "unknown role")
			return
		}

		c.Set(CtxUserIDKey, sub)
		c.Set(CtxRoleKey, role)
		c.Next()
	}
}

// RequireRole は RequireAuth の後段で許可権限を絞る
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if validRole(r) {
			allowed[r] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		v, ok := c.Get(CtxRoleKey)
		if !ok {
			abortAuth(c, http.StatusForbidden, codeForbidden, "missing role")
			return
		}
		role, ok := v.(string)
		if !ok || role == "" {
			abortAuth(c, http.StatusForbidden, codeForbidden, "missing role")
			return
		}
		if _, ok := allowed[role]; !ok {
			abortAuth(c, http.StatusForbidden, codeForbidden, "insufficient role")
			return
		}
		c.Next()
	}
}

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret []byte, sub, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newAuthRouter(secret []byte, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := []gin.HandlerFunc{RequireAuth(secret)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRole(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user": c.GetString(CtxUserIDKey),
			"role": c.GetString(CtxRoleKey),
		})
	})
	r.GET("/protected", handlers...)
	return r
}

func doGet(r *gin.Engine, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal error body %q: %v", body, err)
	}
	if payload.Error.Message == "" {
		t.Errorf("error message missing in %q", body)
	}
	return payload.Error.Code
}

func TestRequireAuthAccepts(t *testing.T) {
	secret := []byte("mw-secret")
	r := newAuthRouter(secret)

	w := doGet(r, "Bearer "+signToken(t, secret, "staff01", RoleStaff))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var res map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res["user"] != "staff01" || res["role"] != RoleStaff {
		t.Errorf("context = %v, want staff01/staff", res)
	}
}

func TestRequireAuthRejects(t *testing.T) {
	secret := []byte("mw-secret")
	r := newAuthRouter(secret)

	cases := []struct {
		name  string
		authz string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + signToken(t, []byte("other"), "staff01", RoleStaff)},
		// 閉じた権限集合に無いroleは通さない
		{"unknown role", "Bearer " + signToken(t, secret, "staff01", "superuser")},
		{"empty role", "Bearer " + signToken(t, secret, "staff01", "")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := doGet(r, c.authz)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if code := errorCode(t, w.Body.Bytes()); code != codeUnauthenticated {
				t.Errorf("code = %s, want %s", code, codeUnauthenticated)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	secret := []byte("mw-secret")
	r := newAuthRouter(secret, RoleAdmin)

	// admin は通る
	w := doGet(r, "Bearer "+signToken(t, secret, "admin01", RoleAdmin))
	if w.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", w.Code)
	}

	// staff は 403
	w = doGet(r, "Bearer "+signToken(t, secret, "staff01", RoleStaff))
	if w.Code != http.StatusForbidden {
		t.Fatalf("staff status = %d, want 403", w.Code)
	}
	if code := errorCode(t, w.Body.Bytes()); code != codeForbidden {
		t.Errorf("code = %s, want %s", code, codeForbidden)
	}
}

package middleware

import (
	"labeloo/app/auth"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextUserID 上下文中保存当前用户ID的键
const ContextUserID = "user_id"

// ContextUsername 上下文中保存当前用户名的键
const ContextUsername = "username"

// JWTAuth JWT认证中间件
func JWTAuth(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"kind":    "unauthorized",
				"message": "Authorization header format must be Bearer {token}",
			})
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"kind":    "unauthorized",
				"message": "Invalid token: " + err.Error(),
			})
			return
		}

		// 将用户信息存储到上下文中
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Next()
	}
}

// CurrentUserID 读取认证中间件写入的用户ID
func CurrentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

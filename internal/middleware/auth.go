package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// gin.Context 中保存认证用户信息的键
const (
	ContextUserID    = "user_id"
	ContextUserName  = "user_name"
	ContextUserImage = "user_image"
)

// ErrMissingAuthHeader 定义一个自定义错误，用于表示缺少 Authorization 头
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// Auth 返回一个 Gin 中间件，用于验证 JWT token。
// Token 由账号系统签发，这里只校验 HMAC 签名并读取 sub/user_id、name、picture。
func Auth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Auth middleware")
	}

	return func(c *gin.Context) {
		// 1. 从请求头或查询参数提取 Token
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Warn("Auth middleware: Missing Authorization header")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				logrus.Warnf("Auth middleware: Malformed token format: %v", err)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		// 2. 验证 Token
		claims, err := validateToken(tokenStr, jwtSecret)
		if err != nil {
			logCtx := logrus.WithError(err)
			logCtx.Warn("Auth middleware: Invalid token")
			var validationError *jwt.ValidationError
			if errors.As(err, &validationError) && validationError.Errors&jwt.ValidationErrorExpired != 0 {
				logCtx.Warn("Reason: Token is expired")
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		// 3. 从 Claims 中提取用户信息并设置到 Context
		userID, ok := subject(claims)
		if !ok {
			logrus.Warn("Auth middleware: token has no usable subject")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is missing user id"})
			c.Abort()
			return
		}
		c.Set(ContextUserID, userID)
		if name, ok := claims["name"].(string); ok {
			c.Set(ContextUserName, name)
		}
		if picture, ok := claims["picture"].(string); ok {
			c.Set(ContextUserImage, picture)
		}
		logrus.WithField("user_id", userID).Debug("Auth middleware: User authenticated via JWT")

		c.Next()
	}
}

// extractToken 从 Authorization 头提取 Bearer Token。
// 浏览器的 WebSocket 无法设置请求头，所以也接受 access_token 查询参数。
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("access_token"); token != "" {
			return token, nil
		}
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

// validateToken 解析并验证 JWT token 字符串
func validateToken(tokenStr string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}

// subject 优先使用 sub，其次 user_id。数字 id 会被格式化为字符串
func subject(claims jwt.MapClaims) (string, bool) {
	for _, key := range []string{"sub", "user_id"} {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			if v > 0 && v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10), true
			}
		}
	}
	return "", false
}

// CurrentActor 读取 Auth 中间件写入的用户信息。
func CurrentActor(c *gin.Context) (domain.Actor, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		return domain.Actor{}, false
	}
	return domain.Actor{
		UserID:    userID,
		UserName:  c.GetString(ContextUserName),
		UserImage: c.GetString(ContextUserImage),
	}, true
}

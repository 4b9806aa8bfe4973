package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// OracleAuthMiddleware authenticates the execution oracle's callback
// ingress with a shared bearer token.
type OracleAuthMiddleware struct {
	token  string
	logger *logrus.Logger
}

func NewOracleAuthMiddleware(token string, logger *logrus.Logger) *OracleAuthMiddleware {
	return &OracleAuthMiddleware{token: token, logger: logger}
}

func (o *OracleAuthMiddleware) RequireOracleAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if o.token == "" {
			// no token configured, callback endpoint is open (dev mode)
			c.Next()
			return
		}
		presented, ok := bearerToken(c)
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(o.token)) != 1 {
			o.logger.WithField("path", c.Request.URL.Path).Warn("oracle auth failed")
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid oracle token",
				"code":    "INVALID_ORACLE_TOKEN",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

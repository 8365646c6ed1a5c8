package server

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agencycal/calib/pkg/auth"
)

const sessionKey = "calib.session"

// ginLogger logs each request through logrus.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		stop := time.Since(start)
		latency := int(math.Ceil(float64(stop.Nanoseconds()) / 1000000.0))
		statusCode := c.Writer.Status()
		dataLength := max(c.Writer.Size(), 0)

		fields := logrus.Fields{
			"statusCode": statusCode,
			"latency":    latency,
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": dataLength,
		}
		if sess, ok := sessionFrom(c); ok {
			fields["user"] = sess.Email
		}
		entry := logger.WithFields(fields)

		msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, statusCode, latency)
		if len(c.Errors) > 0 {
			msg += ": " + c.Errors.ByType(gin.ErrorTypePrivate).String()
		}
		switch {
		case statusCode >= http.StatusInternalServerError:
			entry.Error(msg)
		case statusCode >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Debug(msg)
		}
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	// EventSource clients cannot set headers.
	if c.Request.Method == http.MethodGet {
		return c.Query("access_token")
	}
	return ""
}

var errMissingToken = errors.New("missing bearer token")

func (s *Server) authenticate(c *gin.Context) (auth.Session, error) {
	token := bearerToken(c)
	if token == "" {
		return auth.Session{}, errMissingToken
	}
	return s.issuer().Verify(token)
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.authenticate(c)
		if err != nil {
			abort(c, http.StatusUnauthorized, err)
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// optionalAuth attaches the session when a valid token is present.
func (s *Server) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sess, err := s.authenticate(c); err == nil {
			c.Set(sessionKey, sess)
		}
		c.Next()
	}
}

func requireRole(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, errMissingToken)
			return
		}
		if sess.Role != role {
			abort(c, http.StatusForbidden, fmt.Errorf("%s role required", role))
			return
		}
		c.Next()
	}
}

func sessionFrom(c *gin.Context) (auth.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return auth.Session{}, false
	}
	sess, ok := v.(auth.Session)
	return sess, ok
}

// abort writes {"error": ...} and records err for the request logger.
func abort(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/covenantwatch/pkg/constants"
)

// maxHeaderValueLen bounds caller-supplied correlation values.
const maxHeaderValueLen = 128

// RequestID propagates X-Request-ID, generating one when the caller sent none.
// The id is echoed on the response and stored in the request context for logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := sanitizeHeader(c.GetHeader(constants.HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(string(constants.ContextKeyRequestID), id)
		c.Header(constants.HeaderRequestID, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, id))
		c.Next()
	}
}

// Actor stores the X-Actor header in the request context so audit events can
// name who triggered them.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := sanitizeHeader(c.GetHeader(constants.HeaderActor)); actor != "" {
			c.Set(string(constants.ContextKeyActor), actor)
			c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), constants.ContextKeyActor, actor))
		}
		c.Next()
	}
}

func sanitizeHeader(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > maxHeaderValueLen {
		v = v[:maxHeaderValueLen]
	}
	return v
}

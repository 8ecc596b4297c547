// Package handlers provides the gin HTTP handlers of the covenantwatch API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/covenantwatch/pkg/errors"
	"github.com/turtacn/covenantwatch/pkg/logger"
	"github.com/turtacn/covenantwatch/pkg/utils"
)

// respondError maps err to its HTTP status and the standard error body.
// Client errors log at warn, everything else at error.
func respondError(c *gin.Context, log logger.Logger, err error, operation string) {
	status, body := errors.ToErrorResponse(err)
	_ = c.Error(err)

	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", err,
			logger.String("operation", operation),
			logger.String("error_code", body.Error))
	} else {
		log.Warn(ctx, "request rejected",
			logger.String("operation", operation),
			logger.String("error_code", body.Error),
			logger.Err(err))
	}
	c.JSON(status, body)
}

// bindJSON decodes the request body into req and runs struct validation.
func bindJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return errors.ErrInvalidRequest("malformed JSON body: " + err.Error())
	}
	return utils.ValidateStruct(req)
}

// queryInt reads a non-negative integer query parameter with a default.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v := utils.StringToInt(raw, -1)
	if v < 0 {
		return 0, errors.ErrInvalidRequest(name+" must be a non-negative integer").WithMetadata(name, raw)
	}
	return v, nil
}

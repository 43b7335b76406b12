package router

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/compozy/blockgate/engine/core"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// SuccessEnvelope wraps every successful response body.
type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Details    any    `json:"details,omitempty"`
	RetryAfter *int64 `json:"retryAfter,omitempty"`
}

func RespondWithData(c *gin.Context, status int, data any) {
	c.JSON(status, SuccessEnvelope{Success: true, Data: data})
}

func RespondOK(c *gin.Context, data any) {
	RespondWithData(c, http.StatusOK, data)
}

// RetryAfterSeconds rounds d up to whole seconds, never below one.
func RetryAfterSeconds(d time.Duration) int64 {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// RespondWithError writes err as an error envelope and aborts the chain.
func RespondWithError(c *gin.Context, err error) {
	apiErr := AsAPIError(err)
	body := ErrorEnvelope{Error: apiErr.Message, Code: apiErr.Code, Details: apiErr.Details}
	if apiErr.Code == ErrRateLimitedCode || apiErr.RetryAfter > 0 {
		secs := RetryAfterSeconds(apiErr.RetryAfter)
		body.RetryAfter = &secs
		c.Header("Retry-After", strconv.FormatInt(secs, 10))
	}
	logAPIError(c, apiErr)
	c.AbortWithStatusJSON(apiErr.Status(), body)
}

func logAPIError(c *gin.Context, apiErr *APIError) {
	log := logger.FromContext(c.Request.Context())
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	fields := []any{"code", apiErr.Code, "status", apiErr.Status(), "route", route}
	if apiErr.Err != nil {
		fields = append(fields, "error", core.RedactError(apiErr.Err))
	}
	if apiErr.Status() >= http.StatusInternalServerError {
		log.Error("Request failed", fields...)
		return
	}
	log.Debug("Request rejected", fields...)
}

// BindJSON decodes the body into dst and converts binding failures into INVALID_PARAMS.
func BindJSON(c *gin.Context, dst any) *APIError {
	if err := c.ShouldBindJSON(dst); err != nil {
		return bindingError(err)
	}
	return nil
}

func bindingError(err error) *APIError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = describeFieldError(fe)
		}
		return InvalidParams("Invalid request body", fields)
	}
	return InvalidParams("Invalid request body", map[string]string{"body": err.Error()}).Wrap(err)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

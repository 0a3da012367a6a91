package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/apperror"
)

// ErrorBody is the body of every failed request.
type ErrorBody struct {
	Success   bool              `json:"success"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	RequestID string            `json:"requestId"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// ────────────────────────────────────────────────────────────────────────────
// Helper builders
// ────────────────────────────────────────────────────────────────────────────

// Success sends body with "success": true added.
func Success(c *gin.Context, statusCode int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(statusCode, body)
}

// Fail sends an error response with an error code and no field-level details.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, errorBody(c, string(code), GetMessage(code), nil))
}

// FailWithFields sends an error response with field-level validation details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, errorBody(c, string(code), GetMessage(code), fields))
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, errorBody(c, string(code), GetMessage(code), nil))
}

// Error maps err onto its status and body. Unexpected errors are logged with
// the request id and reported with a generic message.
func Error(c *gin.Context, err error) {
	status, body := fromError(c, err)
	c.JSON(status, body)
}

// AbortError is Error for middleware.
func AbortError(c *gin.Context, err error) {
	status, body := fromError(c, err)
	c.AbortWithStatusJSON(status, body)
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func fromError(c *gin.Context, err error) (int, ErrorBody) {
	appErr := apperror.As(err)
	log := zerolog.Ctx(c.Request.Context())

	switch appErr.Kind {
	case apperror.KindUnexpected:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unexpected error")
		return appErr.HTTPStatus(), errorBody(c, string(ErrInternal), GetMessage(ErrInternal), nil)
	case apperror.KindTransientStore:
		log.Warn().Err(err).Str("path", c.FullPath()).Msg("Record store unavailable")
	}

	return appErr.HTTPStatus(), errorBody(c, appErr.Code, appErr.Message, nil)
}

func errorBody(c *gin.Context, code, message string, fields map[string]string) ErrorBody {
	return ErrorBody{
		Success:   false,
		Code:      code,
		Message:   message,
		RequestID: RequestID(c),
		Fields:    fields,
	}
}

// RequestID returns the id assigned by RequestIDMiddleware.
func RequestID(c *gin.Context) string {
	reqID, _ := c.Get(ContextKeyRequestID)
	id, ok := reqID.(string)
	if !ok || id == "" {
		id = uuid.New().String() // Fallback if middleware not applied
		c.Set(ContextKeyRequestID, id)
	}
	return id
}

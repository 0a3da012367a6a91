package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-portal/internal/apperror"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/validator"
)

// tagErrors maps a failed custom tag to the domain error it stands for, in
// reporting priority.
var tagErrors = []struct {
	tag string
	err *apperror.Error
}{
	{validator.TagPhone, apperror.ErrInvalidPhone},
	{validator.TagOTP, apperror.ErrInvalidOTPFormat},
}

// bind decodes and validates the JSON body. On failure it writes the error
// response and returns false.
func bind(c *gin.Context, dst any) bool {
	err := validator.Bind(c, dst)
	if err == nil {
		return true
	}

	tags := validator.FailedTags(err)
	if tags == nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidPayload, validator.TranslateErrors(err))
		return false
	}
	failed := make(map[string]bool, len(tags))
	for _, tag := range tags {
		failed[tag] = true
	}
	for _, te := range tagErrors {
		if failed[te.tag] {
			response.Error(c, te.err)
			return false
		}
	}
	response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
	return false
}

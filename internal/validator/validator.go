package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/stemsi/exstem-portal/internal/model"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// Custom tags understood by request structs.
const (
	TagPhone = "phone10"
	TagOTP   = "otp6"
)

var customTags = []struct {
	tag     string
	fn      func(string) bool
	message string
}{
	{TagPhone, model.IsPhone, "{0} must be exactly 10 digits"},
	{TagOTP, model.IsOTPCode, "{0} must be exactly 6 digits"},
}

// Setup registers the validator with English translations and the custom
// tags on Gin's binding engine. Call once during application startup.
func Setup() {
	v, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		return
	}

	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	for _, ct := range customTags {
		match := ct.fn
		_ = v.RegisterValidation(ct.tag, func(fl govalidator.FieldLevel) bool {
			return match(fl.Field().String())
		})

		message := ct.message
		_ = v.RegisterTranslation(ct.tag, trans,
			func(u ut.Translator) error { return u.Add(ct.tag, message, true) },
			func(u ut.Translator, fe govalidator.FieldError) string {
				msg, _ := u.T(fe.Tag(), fe.Field())
				return msg
			},
		)
	}
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name to human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			if trans != nil {
				fields[fe.Field()] = fe.Translate(trans)
			} else {
				fields[fe.Field()] = fe.Error()
			}
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// FailedTags returns the tag per failing field, for mapping to domain codes.
func FailedTags(err error) map[string]string {
	var ve govalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	tags := make(map[string]string, len(ve))
	for _, fe := range ve {
		tags[fe.Field()] = fe.Tag()
	}
	return tags
}

// Bind binds and validates the request body into dst.
func Bind(c *gin.Context, dst interface{}) error {
	return c.ShouldBindJSON(dst)
}

package middleware

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/dealerhub/platform/shared/apperrors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report the wire name (json or form tag) instead of the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

type ValidationErrorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// ValidateRequest runs struct validation and returns nil when obj is valid.
func ValidateRequest(obj any) *apperrors.ValidationError {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Invalid("request", err.Error())
	}

	result := apperrors.NewValidationError()
	for _, fe := range verrs {
		result.Add(fieldPath(fe), getErrorMsg(fe))
	}
	return result
}

// fieldPath drops the top-level struct name from the namespace:
// "UploadRequest.order[0]" becomes "order.0".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	ns = strings.ReplaceAll(ns, "[", ".")
	return strings.ReplaceAll(ns, "]", "")
}

func getErrorMsg(err validator.FieldError) string {
	field := err.Field()
	switch err.Tag() {
	case "required":
		return "The " + field + " field is required."
	case "min":
		if err.Kind() == reflect.Slice {
			return "The " + field + " field must have at least " + err.Param() + " items."
		}
		return "The " + field + " field must be at least " + err.Param() + "."
	case "max":
		if err.Kind() == reflect.String {
			return "The " + field + " field must not be greater than " + err.Param() + " characters."
		}
		return "The " + field + " field must not be greater than " + err.Param() + "."
	case "len":
		return "The " + field + " field must be " + err.Param() + " characters."
	case "oneof":
		return "The selected " + field + " is invalid."
	case "gt":
		return "The " + field + " field must be greater than " + err.Param() + "."
	case "gte":
		return "The " + field + " field must be greater than or equal to " + err.Param() + "."
	case "lte":
		return "The " + field + " field must be less than or equal to " + err.Param() + "."
	case "unique":
		return "The " + field + " field has a duplicate value."
	default:
		return "The " + field + " field is invalid."
	}
}

// RespondWithValidationError writes the 422 body the SPA expects.
func RespondWithValidationError(c *gin.Context, verr *apperrors.ValidationError) {
	c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{
		Message: "The given data was invalid.",
		Errors:  verr.Fields,
	})
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"message": message,
	})
}

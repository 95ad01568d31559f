package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// APIError is the JSON error envelope of the REST surface.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates an APIError.
func NewAPIError(status int, code, field, message string) *APIError {
	return &APIError{Code: code, Message: message, Field: field, Status: status}
}

func notFound(message string) *APIError {
	return NewAPIError(http.StatusNotFound, "ERR_NOT_FOUND", "", message)
}

func internalError(err error) *APIError {
	e := NewAPIError(http.StatusInternalServerError, "ERR_INTERNAL", "", "Something went wrong")
	e.Err = err
	return e
}

// HTTPErrorHandler renders every handler error as an APIError.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &he):
		apiErr = NewAPIError(he.Code, "ERR_HTTP", "", fmt.Sprint(he.Message))
	default:
		apiErr = internalError(err)
	}

	if apiErr.Status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("component", "http").Str("path", c.Path()).Msg("request failed")
	}
	if werr := c.JSON(apiErr.Status, apiErr); werr != nil {
		log.Debug().Err(werr).Str("component", "http").Msg("write error response")
	}
}

var validate = validator.New()

// bindAndValidate binds query/path params into req, applies `default` tags,
// and validates `validate` tags.
func bindAndValidate(c echo.Context, req any) *APIError {
	if err := c.Bind(req); err != nil {
		return NewAPIError(http.StatusBadRequest, "ERR_BIND", "", bindMessage(err))
	}
	if err := defaults.Set(req); err != nil {
		return NewAPIError(http.StatusBadRequest, "ERR_DEFAULTS", "", err.Error())
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewAPIError(http.StatusBadRequest, "ERR_"+strings.ToUpper(fe.Tag()),
				strings.ToLower(fe.Field()), fieldMessage(fe))
		}
		return NewAPIError(http.StatusBadRequest, "ERR_UNKNOWN", "", err.Error())
	}
	return nil
}

func bindMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fmt.Sprint(he.Message)
	}
	return err.Error()
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

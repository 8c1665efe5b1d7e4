package server

import (
	"errors"
	"net/http"
	"strings"

	customerdomain "github.com/copiflow/copiflow/internal/customer/domain"
	devicedomain "github.com/copiflow/copiflow/internal/device/domain"
	invoicedomain "github.com/copiflow/copiflow/internal/invoice/domain"
	"github.com/copiflow/copiflow/internal/locks"
	productdomain "github.com/copiflow/copiflow/internal/product/domain"
	readingdomain "github.com/copiflow/copiflow/internal/reading/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isUnprocessableError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, locks.ErrLockUnavailable),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	var regression *readingdomain.CounterRegressionError
	if errors.As(err, &regression) {
		return true
	}
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isCustomerValidationError(err),
		isDeviceValidationError(err),
		isProductValidationError(err),
		isReadingValidationError(err),
		isInvoiceValidationError(err):
		return true
	default:
		return false
	}
}

// isConflictError covers duplicates and illegal state transitions.
func isConflictError(err error) bool {
	var transition *readingdomain.IllegalTransitionError
	if errors.As(err, &transition) {
		return true
	}
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, devicedomain.ErrDuplicateSerial),
		errors.Is(err, readingdomain.ErrDuplicateBillingDate):
		return true
	default:
		return false
	}
}

// isUnprocessableError covers invoicing preconditions the caller can
// fix with configuration rather than with the request body.
func isUnprocessableError(err error) bool {
	var missing *invoicedomain.MissingProductsError
	if errors.As(err, &missing) {
		return true
	}
	switch {
	case errors.Is(err, invoicedomain.ErrMissingCustomer),
		errors.Is(err, invoicedomain.ErrNothingToBill):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, devicedomain.ErrNotFound),
		errors.Is(err, readingdomain.ErrNotFound),
		errors.Is(err, readingdomain.ErrDeviceNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isCustomerValidationError(err error) bool {
	switch {
	case errors.Is(err, customerdomain.ErrInvalidName),
		errors.Is(err, customerdomain.ErrInvalidEmail),
		errors.Is(err, customerdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isDeviceValidationError(err error) bool {
	switch {
	case errors.Is(err, devicedomain.ErrInvalidID),
		errors.Is(err, devicedomain.ErrInvalidCustomer),
		errors.Is(err, devicedomain.ErrInvalidSerial),
		errors.Is(err, devicedomain.ErrInvalidDeviceType),
		errors.Is(err, devicedomain.ErrInvalidMode),
		errors.Is(err, devicedomain.ErrInvalidBillingDay),
		errors.Is(err, devicedomain.ErrInvalidDiscount),
		errors.Is(err, devicedomain.ErrInvalidTaxRate),
		errors.Is(err, devicedomain.ErrNegativePrice),
		errors.Is(err, devicedomain.ErrNegativeVolume):
		return true
	default:
		return false
	}
}

func isProductValidationError(err error) bool {
	switch {
	case errors.Is(err, productdomain.ErrInvalidChannel),
		errors.Is(err, productdomain.ErrInvalidCode):
		return true
	default:
		return false
	}
}

func isReadingValidationError(err error) bool {
	switch {
	case errors.Is(err, readingdomain.ErrInvalidID),
		errors.Is(err, readingdomain.ErrInvalidDevice),
		errors.Is(err, readingdomain.ErrInvalidDate),
		errors.Is(err, readingdomain.ErrEmissionBeforeRead):
		return true
	default:
		return false
	}
}

func isInvoiceValidationError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidReading):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

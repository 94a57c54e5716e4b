package response

import (
	"errors"

	"arrozal-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// SuccessBody is the standardized success JSON shape.
type SuccessBody struct {
	Status   string      `json:"status"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// ErrorBody is the standardized error JSON shape.
type ErrorBody struct {
	Status string      `json:"status"`
	Error  ErrorDetail `json:"error"`
}

// ErrorDetail is the nested error object.
type ErrorDetail struct {
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	Details    interface{} `json:"details,omitempty"`
}

const statusSuccess = "success"
const statusError = "error"

// Success sends a 200 OK response with the standard success format.
func Success(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return c.Status(fiber.StatusOK).JSON(SuccessBody{
		Status:   statusSuccess,
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// SuccessCreated sends a 201 Created response with the standard success format.
func SuccessCreated(c *fiber.Ctx, message string, data interface{}, metadata interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return c.Status(fiber.StatusCreated).JSON(SuccessBody{
		Status:   statusSuccess,
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// Error sends a response with the standard error format.
func Error(c *fiber.Ctx, message string, statusCode int, details interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	return c.Status(statusCode).JSON(ErrorBody{
		Status: statusError,
		Error: ErrorDetail{
			Message:    message,
			StatusCode: statusCode,
			Details:    details,
		},
	})
}

// FromError maps a ledger error to its HTTP status and renders the standard
// error format, with silo context in details when available. Unknown
// errors become 500 without leaking internals.
func FromError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		code = fiber.StatusBadRequest
		message = domain.ErrInvalidAmount.Error()
	case errors.Is(err, domain.ErrSiloNotFound):
		code = fiber.StatusNotFound
		message = domain.ErrSiloNotFound.Error()
	case errors.Is(err, domain.ErrEmptySilo):
		code = fiber.StatusConflict
		message = domain.ErrEmptySilo.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		code = fiber.StatusConflict
		message = domain.ErrInsufficientStock.Error()
	case errors.Is(err, domain.ErrCapacityExceeded):
		code = fiber.StatusConflict
		message = domain.ErrCapacityExceeded.Error()
	case errors.Is(err, domain.ErrPlanStale):
		code = fiber.StatusConflict
		message = domain.ErrPlanStale.Error()
	case errors.Is(err, domain.ErrResourceBusy):
		code = fiber.StatusServiceUnavailable
		message = domain.ErrResourceBusy.Error()
	}

	var details interface{}
	var lerr *domain.LedgerError
	if errors.As(err, &lerr) {
		details = fiber.Map{
			"silo_id":   lerr.SiloID,
			"requested": lerr.Requested,
			"available": lerr.Available,
		}
	}
	return Error(c, message, code, details)
}

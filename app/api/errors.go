package api

import (
	"errors"
	"log/slog"

	"vectorchat/types"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler maps the domain error taxonomy onto HTTP responses.
// Input errors surface verbatim; service and store failures keep their
// kind but hide internals behind a generic message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiErr Error
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Code).JSON(apiErr)
	}

	var valErr ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}

	var inputErr *types.InputError
	if errors.As(err, &inputErr) {
		return c.Status(fiber.StatusBadRequest).JSON(NewError(fiber.StatusBadRequest, inputErr.Message))
	}

	var notFound *types.NotFoundError
	if errors.As(err, &notFound) {
		return c.Status(fiber.StatusNotFound).JSON(NewError(fiber.StatusNotFound, notFound.Error()))
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return c.Status(fiber.StatusBadGateway).JSON(NewError(fiber.StatusBadGateway, svcErr.Error()))
	}

	var storeErr *types.StoreUnavailableError
	if errors.As(err, &storeErr) {
		slog.Error("store unavailable", "error", storeErr.Err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(NewError(fiber.StatusServiceUnavailable, "document store unavailable"))
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(NewError(fiberErr.Code, fiberErr.Message))
	}

	slog.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(NewError(fiber.StatusInternalServerError, "internal error"))
}

// Error implements the error interface as a JSON-serializable payload.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

package handlerUtil

import (
	"MaskFit/pkg/log"
	"MaskFit/pkg/measure"
	"MaskFit/pkg/response"
	"MaskFit/pkg/utils"
	"errors"

	"github.com/gofiber/fiber/v2"
	fiberUtils "github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

func (h *ErrorHandler) fields(requestID string, err error, path, operation string) log.Fields {
	return log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
		"operation":  operation,
	}
}

func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	var respErr *response.Error
	if errors.As(err, &respErr) {
		fields := h.fields(requestID, err, path, operation)
		fields["code"] = respErr.Code
		if respErr.Code >= fiber.StatusInternalServerError {
			h.logger.WithFields(fields).Error("Operation failed with error response")
		} else {
			h.logger.WithFields(fields).Warn("Operation failed with error response")
		}
		return c.Status(respErr.Code).JSON(ErrorResponse{Error: respErr.Err.Error()})
	}

	var rangeErr *measure.OutOfRangeError
	if errors.As(err, &rangeErr) {
		h.logger.WithFields(h.fields(requestID, err, path, operation)).Warn("Subject outside distance band")
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
			Error:   rangeErr.Prompt(),
			Code:    "OUT_OF_RANGE",
			Details: string(rangeErr.Direction),
		})
	}

	var missingErr *measure.MissingLandmarksError
	if errors.As(err, &missingErr) {
		h.logger.WithFields(h.fields(requestID, err, path, operation)).Warn("Landmark set incomplete")
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{
			Error: measure.MessageMalformed,
			Code:  "MISSING_LANDMARKS",
		})
	}

	var specErr *measure.InvalidSpecError
	if errors.As(err, &specErr) {
		h.logger.WithFields(h.fields(requestID, err, path, operation)).Warn("Invalid measurement profile")
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_PROFILE",
		})
	}

	if errors.Is(err, utils.ErrNoFile) || errors.Is(err, utils.ErrNotAnImage) {
		h.logger.WithFields(h.fields(requestID, err, path, operation)).Warn("Invalid image upload")
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "An image file is required (JPEG, PNG or WebP).",
			Code:  "INVALID_IMAGE",
		})
	}

	if errors.Is(err, utils.ErrFileTooLarge) {
		h.logger.WithFields(h.fields(requestID, err, path, operation)).Warn("File too large")
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(ErrorResponse{
			Error: "File too large. Maximum size is 5MB.",
			Code:  "FILE_TOO_LARGE",
		})
	}

	if errors.Is(err, measure.ErrCameraNotReady) {
		h.logger.WithFields(h.fields(requestID, err, path, operation)).Warn("Camera not ready")
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: measure.MessageCameraNotReady,
			Code:  "CAMERA_NOT_READY",
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		h.logger.WithFields(h.fields(requestID, err, path, operation)).Warn("Request rejected")
		return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: fiberErr.Message})
	}

	traceID := log.ErrorWithTraceID(h.fields(requestID, err, path, operation), "Unexpected error")

	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "An unexpected error occurred",
		Details: "trace_id: " + traceID,
	})
}

func (h *ErrorHandler) HandleValidationError(c *fiber.Ctx, requestID string, err error, path string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Validation failed")

	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: "Validation failed: " + err.Error(),
		Code:  "VALIDATION_ERROR",
	})
}

func (h *ErrorHandler) HandleRequestTimeout(c *fiber.Ctx) error {
	return c.Status(fiber.StatusRequestTimeout).JSON(fiberUtils.StatusMessage(fiber.StatusRequestTimeout))
}

func (h *ErrorHandler) HandleUnauthorized(c *fiber.Ctx, requestID string, message string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"path":       c.Path(),
		"message":    message,
	}).Warn("Unauthorized access")

	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
		Error: message,
		Code:  "UNAUTHORIZED",
	})
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}

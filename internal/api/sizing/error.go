package sizing

import (
	"MaskFit/pkg/response"
	"net/http"
)

var (
	ErrUnknownProfile      = response.NewError(http.StatusBadRequest, "unknown measurement profile")
	ErrInvalidImage        = response.NewError(http.StatusBadRequest, "frame is not a decodable image")
	ErrImageTooLarge       = response.NewError(http.StatusRequestEntityTooLarge, "frame dimensions exceed 4096x4096 pixels")
	ErrRecordNotFound      = response.NewError(http.StatusNotFound, "fit record not found")
	ErrResultNotFound      = response.NewError(http.StatusNotFound, "no recent result for session")
	ErrSourceUnavailable   = response.NewError(http.StatusServiceUnavailable, "landmark source unavailable")
	ErrCreateRecord        = response.NewError(http.StatusInternalServerError, "failed to store fit record")
	ErrInternalServerError = response.NewError(http.StatusInternalServerError, "internal server error")
	ErrMeasurementRejected = response.NewError(http.StatusUnprocessableEntity, "measurement rejected")
)

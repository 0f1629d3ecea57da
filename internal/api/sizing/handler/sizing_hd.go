package sizingHandler

import (
	"MaskFit/internal/api/sizing"
	contextPkg "MaskFit/pkg/context"
	"MaskFit/pkg/handlerUtil"
	jwtPkg "MaskFit/pkg/jwt"
	"MaskFit/pkg/log"
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

const requestTimeout = 10 * time.Second

func (h *SizingHandler) ListProfiles(ctx *fiber.Ctx) error {
	errHandler := handlerUtil.New(h.log)
	return errHandler.HandleSuccess(ctx, fiber.StatusOK, h.sizingService.Profiles())
}

func (h *SizingHandler) Estimate(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	var req sizing.EstimateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.Handle(ctx, requestID, fiber.NewError(fiber.StatusBadRequest, "invalid request body"), ctx.Path(), "parse_request_body")
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	outcome, err := h.sizingService.Estimate(c, req)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "estimate")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"session_id": req.SessionID,
			"status":     outcome.Status,
			"label":      outcome.Label.String(),
		}).Debug("Estimate served")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, outcome)
	}
}

func (h *SizingHandler) Capture(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	var req sizing.CaptureRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.Handle(ctx, requestID, fiber.NewError(fiber.StatusBadRequest, "invalid form data"), ctx.Path(), "parse_form")
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	file, err := ctx.FormFile("image")
	if err != nil {
		file = nil
	}

	frame, err := h.utils.ReadImageFile(file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_image_file")
	}

	var userID string
	if user, err := jwtPkg.GetUserLoginData(ctx); err == nil {
		userID = user.ID
	}

	res, err := h.sizingService.Capture(c, req, userID, frame)
	if errors.Is(err, sizing.ErrMeasurementRejected) {
		return errHandler.HandleSuccess(ctx, fiber.StatusUnprocessableEntity, res)
	}
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "capture")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"record_id":  res.Record.ID,
			"label":      res.Record.Label,
		}).Info("Capture recorded")
		return errHandler.HandleSuccess(ctx, fiber.StatusCreated, res)
	}
}

func (h *SizingHandler) Latest(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	outcome, err := h.sizingService.Latest(c, ctx.Params("id"))
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "latest")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, outcome)
}

func (h *SizingHandler) GetRecord(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	// anonymous callers only see records captured without a token
	user, _ := jwtPkg.GetUserLoginData(ctx)

	record, err := h.sizingService.GetRecord(c, ctx.Params("id"), user.ID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_record")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, record)
	}
}

func (h *SizingHandler) SessionRecords(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	user, _ := jwtPkg.GetUserLoginData(ctx)

	records, err := h.sizingService.SessionRecords(c, ctx.Params("id"), user.ID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "session_records")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, sizing.RecordListResponse{Records: records})
	}
}

func (h *SizingHandler) ListRecords(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	user, err := jwtPkg.GetUserLoginData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized, access token invalid or expired")
	}

	records, err := h.sizingService.ListRecords(c, user.ID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "list_records")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, sizing.RecordListResponse{Records: records})
	}
}

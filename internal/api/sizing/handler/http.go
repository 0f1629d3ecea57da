package sizingHandler

import (
	sizingService "MaskFit/internal/api/sizing/service"
	"MaskFit/internal/middleware"
	"MaskFit/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type SizingHandler struct {
	log           *logrus.Logger
	validator     *validator.Validate
	middleware    middleware.Middleware
	sizingService sizingService.ISizingService
	utils         utils.IUtils
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ss sizingService.ISizingService,
	utils utils.IUtils,
) *SizingHandler {
	return &SizingHandler{
		sizingService: ss,
		log:           log,
		validator:     validator,
		middleware:    middleware,
		utils:         utils,
	}
}

func (h *SizingHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	sizing := srv.Group("/sizing")
	sizing.Get("/profiles", h.ListProfiles)
	sizing.Post("/estimate", h.middleware.NewRateLimiter, h.Estimate)
	sizing.Post("/capture", h.middleware.NewRateLimiter, h.middleware.NewOptionalTokenMiddleware, h.Capture)
	sizing.Get("/sessions/:id/latest", h.Latest)
	sizing.Get("/sessions/:id/records", h.middleware.NewOptionalTokenMiddleware, h.SessionRecords)
	sizing.Get("/records", h.middleware.NewTokenMiddleware, h.ListRecords)
	sizing.Get("/records/:id", h.middleware.NewOptionalTokenMiddleware, h.GetRecord)

	sizing.Use("/ws", wsMiddleware)
	sizing.Get("/ws", websocket.New(h.handleWebSocket))
}

package sizingHandler

import (
	"MaskFit/internal/api/sizing"
	"MaskFit/internal/entity"
	contextPkg "MaskFit/pkg/context"
	"MaskFit/pkg/response"
	"MaskFit/pkg/utils"
	"context"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleWebSocket serves one live sizing stream. Text frames carry landmarks
// detected by the client, binary frames carry encoded images for the server
// side landmark source. Every frame is answered with one outcome.
func (h *SizingHandler) handleWebSocket(c *websocket.Conn) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID, _ = h.utils.NewULIDFromTimestamp(time.Now())
	}
	profile := c.Query("profile")

	logger := h.log.WithFields(logrus.Fields{"session_id": sessionID})
	logger.Info("Sizing WebSocket client connected")
	defer logger.Info("Sizing WebSocket client disconnected")

	c.SetReadLimit(utils.MaxFileSize)

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			logger.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	if !h.writeJSON(c, logger, sizing.StreamHello{Type: "session", SessionID: sessionID, Profile: profile}) {
		return
	}

	for {
		if err := c.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			logger.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("Sizing WebSocket error: %v", err)
			} else {
				logger.Info("Sizing WebSocket connection closed")
			}
			break
		}

		ctx, cancel := context.WithTimeout(contextPkg.WithSessionID(context.Background(), sessionID), requestTimeout)
		var reply interface{}

		switch messageType {
		case websocket.BinaryMessage:
			outcome, err := h.sizingService.ProcessFrame(ctx, sessionID, profile, message)
			reply = replyFor(outcome, err)
		case websocket.TextMessage:
			reply = h.handleText(ctx, sessionID, &profile, message)
		default:
			logger.Warnf("Received unexpected message type: %d", messageType)
		}
		cancel()

		if reply != nil && !h.writeJSON(c, logger, reply) {
			break
		}
	}
}

func (h *SizingHandler) handleText(ctx context.Context, sessionID string, profile *string, message []byte) interface{} {
	var msg sizing.StreamMessage
	if err := jsoniter.Unmarshal(message, &msg); err != nil {
		return sizing.StreamError{Error: "invalid message"}
	}
	if err := h.validator.Struct(msg); err != nil {
		return sizing.StreamError{Error: "Validation failed: " + err.Error()}
	}

	switch msg.Type {
	case sizing.StreamMessageProfile:
		if !h.hasProfile(msg.Profile) {
			return sizing.StreamError{Error: sizing.ErrUnknownProfile.Error()}
		}
		*profile = msg.Profile
		return sizing.StreamHello{Type: "profile", SessionID: sessionID, Profile: msg.Profile}
	default:
		if msg.Profile == "" {
			msg.Profile = *profile
		}
		outcome, err := h.sizingService.ProcessLandmarks(ctx, sessionID, msg.Profile, entity.Detection{
			Faces:    msg.Faces,
			Viewport: *msg.Viewport,
		})
		return replyFor(outcome, err)
	}
}

func (h *SizingHandler) hasProfile(name string) bool {
	for _, p := range h.sizingService.Profiles().Profiles {
		if p.Name == name {
			return true
		}
	}
	return false
}

func replyFor(outcome entity.Outcome, err error) interface{} {
	if err != nil {
		var respErr *response.Error
		if errors.As(err, &respErr) {
			return sizing.StreamError{Error: respErr.Err.Error()}
		}
		return sizing.StreamError{Error: err.Error()}
	}
	return outcome
}

func (h *SizingHandler) writeJSON(c *websocket.Conn, logger *logrus.Entry, v interface{}) bool {
	if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		logger.Errorf("Error setting write deadline: %v", err)
		return false
	}

	if err := c.WriteJSON(v); err != nil {
		logger.Errorf("Error writing JSON response: %v", err)
		return false
	}

	if err := c.SetWriteDeadline(time.Time{}); err != nil {
		logger.Errorf("Error resetting write deadline: %v", err)
		return false
	}

	return true
}

package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/response"
	"github.com/stemsi/exstem-examcore/internal/service"
	ws "github.com/stemsi/exstem-examcore/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the WebSocket exam stream.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Serves the server-authoritative timer and submission for a started attempt.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims, examID, ok := studentExam(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(ws.MaxMessageBytes)

	ctx := c.Request.Context()
	studentID := claims.UserID
	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Logger()

	// The stream only serves attempts that have been started.
	if !h.handleState(ctx, conn, examID, studentID) {
		return
	}
	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionPing:
			_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		case ws.ActionState:
			h.handleState(ctx, conn, examID, studentID)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, conn, wsLog, examID, studentID, &msg)
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = ws.WriteError(conn, response.ErrInvalidPayload)
		}
	}
}

// handleState sends the attempt's state and, when it is no longer running,
// the matching error. It reports whether an attempt exists.
func (h *WSHandler) handleState(ctx context.Context, conn *websocket.Conn, examID uuid.UUID, studentID int) bool {
	st, err := h.attemptService.ActiveState(ctx, examID, studentID)
	if st != nil {
		_ = ws.WriteTyped(conn, ws.StateResponse{Event: ws.EventState, State: st})
	}
	if err != nil {
		h.writeError(conn, err, response.ErrAttemptNotActive)
	}
	return st != nil
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, examID uuid.UUID, studentID int, msg *ws.Request) {
	result, err := h.attemptService.Submit(ctx, examID, studentID, msg.Answers)
	if err != nil {
		wsLog.Debug().Err(err).Msg("Submit rejected")
		h.writeError(conn, err, response.ErrNotFound)
		return
	}
	_ = ws.WriteTyped(conn, ws.GradedResponse{Event: ws.EventGraded, Result: result})
}

func (h *WSHandler) writeError(conn *websocket.Conn, err error, notFound response.ErrCode) {
	status, code := classify(err, notFound)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Stream request failed")
	}
	_ = ws.WriteError(conn, code)
}

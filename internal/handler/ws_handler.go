package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/upl-platform/exam-portal/internal/engine"
	"github.com/upl-platform/exam-portal/internal/middleware"
	"github.com/upl-platform/exam-portal/internal/model"
	"github.com/upl-platform/exam-portal/internal/response"
	"github.com/upl-platform/exam-portal/internal/service"
	ws "github.com/upl-platform/exam-portal/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
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
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session events to students and accepts their actions.
type WSHandler struct {
	portal   *service.PortalService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(portal *service.PortalService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		portal:   portal,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/session/stream?token=
// Pushes the current state on connect, then every tick and submission of the
// student's session. Clients send answer, navigate, submit and ping.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	ws.Prepare(conn)

	studentID := claims.UserID
	wsLog := h.log.With().Str("student_id", studentID).Logger()
	wsLog.Info().Msg("Student connected")

	events, cancel := h.portal.Hub().Subscribe(studentID)
	defer cancel()

	// Only the writer goroutine touches the connection for writing.
	replies := make(chan interface{}, 8)
	writerDone := make(chan struct{})
	go h.writeLoop(conn, events, replies, writerDone, wsLog)

	send := func(v interface{}) {
		select {
		case replies <- v:
		case <-writerDone:
		}
	}

	if state, err := h.portal.State(studentID); err == nil {
		send(service.StreamEvent{Event: service.StreamState, SessionID: state.SessionID, State: state})
	}

	for {
		var req ws.Request
		if err := ws.ReadJSON(conn, &req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		if reply := h.dispatch(c.Request.Context(), studentID, req); reply != nil {
			send(reply)
		}
	}

	close(replies)
	<-writerDone
}

func (h *WSHandler) writeLoop(conn *websocket.Conn, events <-chan service.StreamEvent, replies <-chan interface{}, done chan<- struct{}, wsLog zerolog.Logger) {
	defer close(done)
	for {
		var msg interface{}
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg = ev
		case reply, ok := <-replies:
			if !ok {
				return
			}
			msg = reply
		}
		if err := ws.WriteTyped(conn, msg); err != nil {
			wsLog.Debug().Err(err).Msg("Write failed")
			// Unblocks the read loop.
			conn.Close()
			return
		}
	}
}

// dispatch runs one client action and returns the direct reply, if any.
// Submission outcomes arrive through the hub like timer submissions do.
func (h *WSHandler) dispatch(ctx context.Context, studentID string, req ws.Request) interface{} {
	switch req.Action {
	case ws.ActionPing:
		return ws.PongResponse{Event: ws.EventPong}

	case ws.ActionAnswer:
		if req.QuestionID == "" || req.Option == nil || *req.Option < 0 {
			return ws.NewError(string(response.ErrValidation), "question_id et option sont requis.")
		}
		state, err := h.portal.SelectAnswer(studentID, req.QuestionID, *req.Option)
		return stateOrError(state, err)

	case ws.ActionNavigate:
		dir := model.Direction(req.Direction)
		if dir != model.DirectionPrev && dir != model.DirectionNext {
			return ws.NewError(string(response.ErrValidation), "direction doit valoir prev ou next.")
		}
		state, err := h.portal.Navigate(studentID, dir)
		return stateOrError(state, err)

	case ws.ActionSubmit:
		_, err := h.portal.Submit(ctx, studentID)
		var submitErr *engine.SubmitError
		if err != nil && !errors.As(err, &submitErr) {
			return errorReply(err)
		}
		return nil

	default:
		h.log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
		return ws.NewError(string(response.ErrInvalidPayload), "action inconnue: "+string(req.Action))
	}
}

func stateOrError(state *model.SessionState, err error) interface{} {
	if err != nil {
		return errorReply(err)
	}
	return service.StreamEvent{Event: service.StreamState, SessionID: state.SessionID, State: state}
}

func errorReply(err error) ws.ErrorResponse {
	_, code := classify(err)
	return ws.NewError(string(code), response.GetMessage(code))
}

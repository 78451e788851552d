package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/upl-platform/exam-portal/internal/backend"
	"github.com/upl-platform/exam-portal/internal/engine"
	"github.com/upl-platform/exam-portal/internal/middleware"
	"github.com/upl-platform/exam-portal/internal/model"
	"github.com/upl-platform/exam-portal/internal/response"
	"github.com/upl-platform/exam-portal/internal/service"
	"github.com/upl-platform/exam-portal/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints (lobby, session).
type StudentPortalHandler struct {
	portal      *service.PortalService
	authService *service.AuthService
	log         zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(portal *service.PortalService, authService *service.AuthService, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		portal:      portal,
		authService: authService,
		log:         log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// GetLobby godoc
// GET /api/v1/student/lobby
// Reloads the student's exams and results. A backend failure still answers
// 200, with load_error set and empty lists.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.portal.Lobby(c.Request.Context(), claims.Student(), middleware.GetToken(c))
	if err != nil {
		failPortal(c, err)
		return
	}
	if lobby.LoadError != "" {
		h.log.Warn().Str("student_id", claims.UserID).Str("error", lobby.LoadError).Msg("Lobby load failed")
		lobby.LoadError = response.GetMessage(response.ErrLoadFailed)
	}

	response.Success(c, http.StatusOK, lobby)
}

// StartExam godoc
// POST /api/v1/student/exams/:exam_id/start
// Opens a session on one lobby exam and starts its countdown.
func (h *StudentPortalHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID := c.Param("exam_id")
	state, err := h.portal.StartExam(c.Request.Context(), claims.Student(), middleware.GetToken(c), examID)
	if err != nil {
		h.log.Info().Err(err).Str("student_id", claims.UserID).Str("exam_id", examID).Msg("Exam start refused")
		failPortal(c, err)
		return
	}

	response.Success(c, http.StatusCreated, state)
}

// GetSession godoc
// GET /api/v1/student/session
// Returns the running session without correct answers.
func (h *StudentPortalHandler) GetSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	state, err := h.portal.State(claims.UserID)
	if err != nil {
		failPortal(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// Navigate godoc
// POST /api/v1/student/session/navigate
// Moves to the previous or next question. Moves past either end are ignored.
func (h *StudentPortalHandler) Navigate(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := h.portal.Navigate(claims.UserID, req.Direction)
	if err != nil {
		failPortal(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// SelectAnswer godoc
// PUT /api/v1/student/session/answers
// Records or replaces the answer to one question.
func (h *StudentPortalHandler) SelectAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := h.portal.SelectAnswer(claims.UserID, req.QuestionID, *req.Option)
	if err != nil {
		failPortal(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// Submit godoc
// POST /api/v1/student/session/submit
// Scores the session and sends the result to the exam backend. The session
// ends even when delivery fails; a result queued for retry answers 202.
func (h *StudentPortalHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	outcome, err := h.portal.Submit(c.Request.Context(), claims.UserID)
	if err != nil {
		var submitErr *engine.SubmitError
		if errors.As(err, &submitErr) && outcome != nil {
			h.log.Error().Err(err).Str("student_id", claims.UserID).Msg("Result delivery failed")
			response.FailWithData(c, http.StatusBadGateway, response.ErrSubmitFailed, backend.Message(err), outcome)
			return
		}
		failPortal(c, err)
		return
	}

	status := http.StatusOK
	if outcome.Queued {
		status = http.StatusAccepted
	}
	response.Success(c, status, outcome)
}

// LeaveSession godoc
// DELETE /api/v1/student/session
// Abandons the running session. Nothing is submitted.
func (h *StudentPortalHandler) LeaveSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.portal.Leave(claims.UserID); err != nil {
		failPortal(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Session abandonnée."})
}

// Logout godoc
// POST /api/v1/student/logout
// Discards any running session and revokes the token.
func (h *StudentPortalHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	h.portal.Logout(c.Request.Context(), claims.UserID)
	if err := h.authService.Revoke(c.Request.Context(), claims); err != nil {
		h.log.Error().Err(err).Str("student_id", claims.UserID).Msg("Token revocation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Déconnexion réussie."})
}

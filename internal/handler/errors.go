package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/upl-platform/exam-portal/internal/engine"
	"github.com/upl-platform/exam-portal/internal/response"
)

// rejectionCodes maps a StartExam refusal to its API code.
var rejectionCodes = map[engine.RejectReason]response.ErrCode{
	engine.RejectSessionActive: response.ErrSessionActive,
	engine.RejectNotYetOpen:    response.ErrExamNotOpen,
	engine.RejectExpired:       response.ErrExamExpired,
	engine.RejectNoQuestions:   response.ErrNoQuestions,
}

// classify maps a portal error to its HTTP status and error code.
func classify(err error) (int, response.ErrCode) {
	var rej *engine.RejectionError
	var loadErr *engine.LoadError
	var submitErr *engine.SubmitError

	switch {
	case errors.As(err, &rej):
		if rej.Reason == engine.RejectSessionActive {
			return http.StatusConflict, response.ErrSessionActive
		}
		return http.StatusUnprocessableEntity, rejectionCodes[rej.Reason]
	case errors.As(err, &loadErr):
		return http.StatusBadGateway, response.ErrLoadFailed
	case errors.As(err, &submitErr):
		return http.StatusBadGateway, response.ErrSubmitFailed
	case errors.Is(err, engine.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotFound
	case errors.Is(err, engine.ErrNoActiveSession):
		return http.StatusNotFound, response.ErrNoActiveSession
	case errors.Is(err, engine.ErrInvalidAnswer):
		return http.StatusUnprocessableEntity, response.ErrInvalidAnswer
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable, response.ErrBackendUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failPortal writes err as an error envelope. A not-yet-open rejection also
// tells the client when the exam opens.
func failPortal(c *gin.Context, err error) {
	status, code := classify(err)

	var rej *engine.RejectionError
	if errors.As(err, &rej) && rej.Reason == engine.RejectNotYetOpen {
		response.FailWithData(c, status, code, "", gin.H{
			"exam_id":  rej.ExamID,
			"opens_at": rej.OpensAt.UTC().Format(time.RFC3339),
		})
		return
	}
	response.Fail(c, status, code)
}

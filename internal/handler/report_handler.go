package handler

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/upl-platform/exam-portal/internal/model"
	"github.com/upl-platform/exam-portal/internal/repository"
	"github.com/upl-platform/exam-portal/internal/response"
	"github.com/upl-platform/exam-portal/internal/service"
	"github.com/upl-platform/exam-portal/internal/validator"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultPerPage  = 20
)

// ReportHandler serves the staff view of results submitted via the portal.
type ReportHandler struct {
	reportService *service.ReportService
	log           zerolog.Logger
	now           func() time.Time
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reportService *service.ReportService, log zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		log:           log.With().Str("component", "report_handler").Logger(),
		now:           time.Now,
	}
}

// ListResults godoc
// GET /api/v1/reports/results?exam_id=&faculty=&page=&per_page=
// Lists ledger results with pass/fail figures and a summary of all matches.
func (h *ReportHandler) ListResults(c *gin.Context) {
	var q model.ResultsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = defaultPerPage
	}

	f := repository.ResultFilter{ExamID: q.ExamID, Faculty: q.Faculty, Page: q.Page, PerPage: q.PerPage}
	report, total, err := h.reportService.ListResults(c.Request.Context(), f)
	if err != nil {
		h.log.Error().Err(err).Msg("List results failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, report, response.NewPagination(q.Page, q.PerPage, int(total)))
}

// ExportResults godoc
// GET /api/v1/reports/results/export?exam_id=&faculty=
// Downloads every matching result as an Excel workbook.
func (h *ReportHandler) ExportResults(c *gin.Context) {
	var q model.ResultsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var buf bytes.Buffer
	f := repository.ResultFilter{ExamID: q.ExamID, Faculty: q.Faculty}
	if err := h.reportService.Export(c.Request.Context(), f, &buf); err != nil {
		h.log.Error().Err(err).Msg("Export results failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+service.ExportFilename(h.now())+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/upl-platform/exam-portal/internal/config"
	"github.com/upl-platform/exam-portal/internal/response"
	"github.com/upl-platform/exam-portal/internal/service"
)

const (
	monitorRefreshInterval   = 15 * time.Second
	monitorKeepAliveInterval = 30 * time.Second
)

var monitorPing = []byte(`{"type":"ping"}`)

// MonitorHandler shows staff the sessions currently running.
type MonitorHandler struct {
	portal *service.PortalService
	rdb    *redis.Client
	log    zerolog.Logger

	refreshInterval   time.Duration
	keepAliveInterval time.Duration
}

// NewMonitorHandler creates a new MonitorHandler. rdb may be nil, in which
// case only the polling endpoint is served.
func NewMonitorHandler(portal *service.PortalService, rdb *redis.Client, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		portal:            portal,
		rdb:               rdb,
		log:               log.With().Str("component", "monitor_handler").Logger(),
		refreshInterval:   monitorRefreshInterval,
		keepAliveInterval: monitorKeepAliveInterval,
	}
}

// ListActiveSessions godoc
// GET /api/v1/reports/sessions?exam_id=
// Lists running sessions with their countdown and answered count. Only the
// sessions hosted by this portal instance are visible.
func (h *MonitorHandler) ListActiveSessions(c *gin.Context) {
	sessions := h.portal.ActiveSessions(c.Query("exam_id"))
	response.Success(c, http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// StreamExam godoc
// GET /api/v1/reports/exams/:exam_id/monitor
// Server-sent events: a snapshot of this instance's sessions, then every
// start, answer, submission and departure published by any instance.
func (h *MonitorHandler) StreamExam(c *gin.Context) {
	if h.rdb == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrMonitorUnavailable)
		return
	}
	examID := c.Param("exam_id")
	ctx := c.Request.Context()

	pubsub := h.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID))
	defer pubsub.Close()
	// Wait for the subscription so nothing published after the snapshot is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.Error().Err(err).Str("exam_id", examID).Msg("Failed to subscribe to monitor channel")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrMonitorUnavailable)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	h.writeSnapshot(c, examID)
	h.log.Info().Str("exam_id", examID).Msg("Staff attached to live monitor")

	ch := pubsub.Channel()
	refresh := time.NewTicker(h.refreshInterval)
	defer refresh.Stop()
	keepAlive := time.NewTicker(h.keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Str("exam_id", examID).Msg("Staff detached from live monitor")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(c, []byte(msg.Payload))
		case <-refresh.C:
			h.writeSnapshot(c, examID)
		case <-keepAlive.C:
			writeSSE(c, monitorPing)
		}
	}
}

func (h *MonitorHandler) writeSnapshot(c *gin.Context, examID string) {
	raw, err := json.Marshal(h.portal.Snapshot(examID))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode monitor snapshot")
		return
	}
	writeSSE(c, raw)
}

func writeSSE(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

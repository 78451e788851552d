package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, reqID string, h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if reqID != "" {
		req.Header.Set(HeaderRequestID, reqID)
	}
	r.ServeHTTP(w, req)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestFailUsesDefaultMessage(t *testing.T) {
	w, body := serve(t, "", func(c *gin.Context) {
		Fail(c, http.StatusConflict, ErrSessionActive)
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrSessionActive, body.Error.Code)
	assert.Equal(t, "Un examen est déjà en cours.", body.Error.Message)
	assert.NotEmpty(t, body.Metadata.RequestID)
	assert.Equal(t, w.Header().Get(HeaderRequestID), body.Metadata.RequestID)
}

func TestFailWithMessageOverrides(t *testing.T) {
	_, body := serve(t, "", func(c *gin.Context) {
		FailWithMessage(c, http.StatusBadGateway, ErrSubmitFailed, "Examen introuvable")
	})
	assert.Equal(t, "Examen introuvable", body.Error.Message)
}

func TestRequestIDIsPropagated(t *testing.T) {
	const id = "5b7a1f4e-1d6a-4d8e-9a51-4e0c3f7f2b10"
	_, body := serve(t, id, func(c *gin.Context) { Success(c, http.StatusOK, "ok") })
	assert.Equal(t, id, body.Metadata.RequestID)

	_, body = serve(t, "not-a-uuid", func(c *gin.Context) { Success(c, http.StatusOK, "ok") })
	assert.NotEqual(t, "not-a-uuid", body.Metadata.RequestID)
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, 3, NewPagination(1, 10, 21).TotalPages)
	assert.Equal(t, 0, NewPagination(1, 0, 21).TotalPages)
}

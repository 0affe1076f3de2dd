package response

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	r := gin.New()
	r.Use(RequestIDMiddleware(zerolog.New(&logs)))
	r.GET("/ok", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("inside handler")
		Created(c, gin.H{"id": 1})
	})
	r.GET("/fail", func(c *gin.Context) { Fail(c, http.StatusConflict, ErrAttemptTerminal) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	var ok Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ok))
	assert.Equal(t, "req-123", ok.Metadata.RequestID)
	assert.Nil(t, ok.Error)
	assert.Contains(t, logs.String(), `"request_id":"req-123","message":"inside handler"`)
	assert.Contains(t, logs.String(), `"status":201`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	var fail Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fail))
	require.NotNil(t, fail.Error)
	assert.Equal(t, ErrAttemptTerminal, fail.Error.Code)
	assert.Equal(t, GetMessage(ErrAttemptTerminal), fail.Error.Message)
	assert.NotEmpty(t, fail.Metadata.RequestID)
}

/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apiresponses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestResponders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		respond    func(c *gin.Context)
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{"not found", func(c *gin.Context) { RespondNotFoundSimple(c, "no such route") }, http.StatusNotFound, "NOT_FOUND", "no such route"},
		{"bad request", func(c *gin.Context) { RespondBadRequestWithDetails(c, "invalid body", "eof") }, http.StatusBadRequest, "BAD_REQUEST", "invalid body"},
		{"bad gateway default", func(c *gin.Context) { RespondBadGateway(c, "") }, http.StatusBadGateway, "BAD_GATEWAY", "bad gateway"},
		{"unavailable", func(c *gin.Context) { RespondServiceUnavailable(c, "persister") }, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service unavailable: persister"},
		{"too many requests", func(c *gin.Context) { RespondTooManyRequests(c, "slow down", 0) }, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "slow down"},
		{"unprocessable", func(c *gin.Context) { RespondUnprocessableEntity(c, "empty batch") }, http.StatusUnprocessableEntity, "UNPROCESSABLE_ENTITY", "empty batch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			tt.respond(c)

			require.Equal(t, tt.wantStatus, rec.Code)
			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestRespondTooManyRequests_RetryAfter(t *testing.T) {
	tests := []struct {
		retryAfter time.Duration
		want       string
	}{
		{0, ""},
		{20 * time.Millisecond, "1"},
		{3 * time.Second, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.retryAfter.String(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			RespondTooManyRequests(c, "slow down", tt.retryAfter)
			assert.Equal(t, tt.want, rec.Header().Get("Retry-After"))
		})
	}
}

func TestRespondError_Aborts(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondUnprocessableEntity(c, "empty batch")
	assert.True(t, c.IsAborted())

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	RespondBadRequestWithDetails(c, "invalid body", "unexpected EOF")
	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unexpected EOF", body.Details)
}

func TestRespondInternalError_LogsButSanitizes(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	RespondInternalError(c, "enrich events", errors.New("secret detail"), zap.New(core))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Failed to enrich events", logs.All()[0].Message)
}

func TestRespondSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondAccepted(c, gin.H{"accepted": 2})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"accepted":2}`, rec.Body.String())

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	RespondOK(c, gin.H{"status": "ok"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

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
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIError is the body of every error response of the ingest API.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// respondError writes the error body and aborts the remaining handlers.
func respondError(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, APIError{Error: message, Code: code, Details: details})
}

func RespondNotFoundSimple(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, "NOT_FOUND", message, "")
}

// RespondBadRequestWithDetails reports a body that could not be decoded.
// details usually carries the decoder error.
func RespondBadRequestWithDetails(c *gin.Context, message, details string) {
	respondError(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

// RespondUnprocessableEntity reports a well-formed body that does not
// describe a valid audit batch.
func RespondUnprocessableEntity(c *gin.Context, message string) {
	respondError(c, http.StatusUnprocessableEntity, "UNPROCESSABLE_ENTITY", message, "")
}

// RespondInternalError logs err and answers with a message naming only the
// failed operation.
func RespondInternalError(c *gin.Context, operation string, err error, log *zap.Logger) {
	if log != nil {
		log.Error("Failed to "+operation, zap.Error(err))
	}
	respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to "+operation, "")
}

// RespondBadGateway reports a batch the configured persister rejected.
func RespondBadGateway(c *gin.Context, message string) {
	if message == "" {
		message = "bad gateway"
	}
	respondError(c, http.StatusBadGateway, "BAD_GATEWAY", message, "")
}

// RespondServiceUnavailable reports a backend that is not accepting batches,
// such as a persister behind an open circuit.
func RespondServiceUnavailable(c *gin.Context, service string) {
	respondError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", fmt.Sprintf("service unavailable: %s", service), "")
}

// RespondTooManyRequests rejects a throttled producer. A positive retryAfter
// is sent as the Retry-After header, rounded up to whole seconds.
func RespondTooManyRequests(c *gin.Context, message string, retryAfter time.Duration) {
	if retryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	respondError(c, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", message, "")
}

func RespondAccepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, data)
}

func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/satindergrewal/vocalbooth/internal/audio"
	"github.com/satindergrewal/vocalbooth/internal/ollama"
	"github.com/satindergrewal/vocalbooth/internal/recorder"
	"github.com/satindergrewal/vocalbooth/internal/studio"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: message})
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: message})
}

// handleStudioError maps controller errors to HTTP responses. The
// underlying error is logged; clients only see the user-safe message.
func handleStudioError(c *gin.Context, err error, action string) {
	status, code, message := http.StatusInternalServerError, "internal_error", "Failed to "+action

	switch {
	case errors.Is(err, studio.ErrBusy):
		status, code, message = http.StatusConflict, "busy", "Stop playback or recording first."
	case errors.Is(err, studio.ErrNothingToPlay):
		status, code, message = http.StatusConflict, "nothing_to_play", "Select a beat or record a take first."
	case errors.Is(err, studio.ErrConfirmationRequired):
		status, code, message = http.StatusPreconditionRequired, "confirmation_required", "Starting a new project discards the current one. Confirm to continue."
	case errors.Is(err, recorder.ErrPermissionDenied):
		status, code, message = http.StatusForbidden, "permission_denied", studio.NoticeMicDenied
	case errors.Is(err, audio.ErrFetch):
		status, code, message = http.StatusBadGateway, "fetch_failed", studio.NoticeLoadFailed
	case errors.Is(err, audio.ErrDecode):
		status, code, message = http.StatusUnprocessableEntity, "decode_failed", studio.NoticeLoadFailed
	case errors.Is(err, ollama.ErrGeneration):
		status, code, message = http.StatusBadGateway, "generation_failed", ollama.FailureMessage
	default:
		log.Printf("Unhandled error during %s: %v", action, err)
	}
	if status != http.StatusInternalServerError {
		log.Printf("%s rejected: %v", action, err)
	}
	c.JSON(status, ErrorResponse{Error: code, Message: message})
}

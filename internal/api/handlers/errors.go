package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceid/internal/capture"
	"github.com/your-org/faceid/internal/identity"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
	"github.com/your-org/faceid/internal/workflow"
	"github.com/your-org/faceid/pkg/dto"
)

const (
	CodeInvalidInput      = "invalid_input"
	CodeDecodeError       = "decode_error"
	CodeNoFaceDetected    = "no_face_detected"
	CodeNotRecognized     = "not_recognized"
	CodeEnrollmentFailed  = "enrollment_failed"
	CodeDeviceUnavailable = "device_unavailable"
	CodeReadFailed        = "read_failed"
	CodeModelUnavailable  = "model_unavailable"
	CodeNotFound          = "not_found"
	CodeCanceled          = "canceled"
	CodeInternal          = "internal"
)

// statusClientClosedRequest is the de-facto status for requests the
// client abandoned.
const statusClientClosedRequest = 499

// classify maps a workflow error to its response status and code.
func classify(err error) (int, string) {
	var ee *workflow.EnrollmentError
	if errors.As(err, &ee) {
		if errors.Is(ee.Reason, capture.ErrDeviceUnavailable) || errors.Is(ee.Reason, vision.ErrModelUnavailable) {
			return http.StatusServiceUnavailable, CodeEnrollmentFailed
		}
		if errors.Is(ee.Reason, context.Canceled) {
			return statusClientClosedRequest, CodeCanceled
		}
		return http.StatusBadRequest, CodeEnrollmentFailed
	}

	switch {
	case errors.Is(err, workflow.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, capture.ErrDecode):
		return http.StatusBadRequest, CodeDecodeError
	case errors.Is(err, capture.ErrReadFailed):
		return http.StatusServiceUnavailable, CodeReadFailed
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable, CodeDeviceUnavailable
	case errors.Is(err, vision.ErrNoFaceDetected):
		return http.StatusNotFound, CodeNoFaceDetected
	case errors.Is(err, vision.ErrModelUnavailable):
		return http.StatusServiceUnavailable, CodeModelUnavailable
	case errors.Is(err, identity.ErrNoMatch):
		return http.StatusNotFound, CodeNotRecognized
	case errors.Is(err, storage.ErrPersonNotFound), errors.Is(err, storage.ErrImageNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, CodeCanceled
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	resp := dto.ErrorResponse{Error: publicMessage(code, err), Code: code}

	var ee *workflow.EnrollmentError
	if errors.As(err, &ee) {
		resp.Attempt = ee.Attempt
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "code", code, "error", err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func publicMessage(code string, err error) string {
	switch code {
	case CodeNoFaceDetected:
		return "No face detected in the image."
	case CodeNotRecognized:
		return "User not recognized or confidence too low."
	case CodeInternal:
		return "internal error"
	}
	return err.Error()
}

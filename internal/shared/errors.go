package shared

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrDeviceBusy        = errors.New("capture device busy")
	ErrRecordingTooShort = errors.New("recording too short")
	ErrEncodingFailed    = errors.New("clip encoding failed")
	ErrNetwork           = errors.New("network error")
	ErrChunkFetchFailed  = errors.New("chunk fetch failed")
	ErrGestureRequired   = errors.New("user gesture required")
	ErrFormatUnsupported = errors.New("audio format unsupported")
)

// ServerError is a non-success HTTP status from the conversational service.
type ServerError struct {
	Code int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: status %d", e.Code)
}

// ProcessingError is a well-formed service reply whose body reports failure.
type ProcessingError struct {
	Message string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error: %s", e.Message)
}

// UserMessage maps an error to the short actionable string shown in the UI.
// Raw error payloads never reach the user.
func UserMessage(err error) string {
	var srvErr *ServerError
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone access was denied. Allow microphone access and try again."
	case errors.Is(err, ErrRecordingTooShort):
		return "That was too short. Hold the button and speak a little longer."
	case errors.Is(err, ErrNetwork):
		return "Couldn't reach the server. Check your connection and try again."
	case errors.As(err, &srvErr):
		return "Something went wrong on our side. Please try again."
	case errors.Is(err, ErrFormatUnsupported):
		return "This audio can't be played on your device."
	case errors.Is(err, ErrGestureRequired):
		return "Tap to play the response."
	default:
		return "Something went wrong. Please try again."
	}
}

// APIError is the JSON error body returned by the control API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func BadRequest(code, message string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, &APIError{Code: code, Message: message})
}

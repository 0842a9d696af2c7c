package handler

import "github.com/labstack/echo/v4"

// Error codes carried in the envelope. Clients branch on these, not on messages.
const (
	CodeBadRequest       = "bad_request"
	CodeNotFound         = "not_found"
	CodeForbidden        = "forbidden"
	CodeNoImage          = "no_image"
	CodeNoResult         = "no_result"
	CodeBusy             = "busy"
	CodeEnhanceFailed    = "enhance_failed"
	CodePublishFailed    = "publish_failed"
	CodeUnsupportedMedia = "unsupported_media_type"
	CodePreviewFailed    = "preview_failed"
	CodeNotImplemented   = "not_implemented"
	CodeDBUnavailable    = "db_unavailable"
	CodeInternal         = "internal_error"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: errorPayload{Code: code, Message: message}}
}

// errorJSON writes the envelope with status.
func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, NewErrorResponse(code, message))
}

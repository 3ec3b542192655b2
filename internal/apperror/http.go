package apperror

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Envelope is the wire shape of the error response body.
type Envelope struct {
	Error ErrorBody `json:"error"`
	Meta  MetaBody  `json:"meta"`
}

// ErrorBody carries the structured error fields.
type ErrorBody struct {
	Code      Code   `json:"code"`
	ErrorCode string `json:"error_code"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Field     string `json:"field,omitempty"`
}

// MetaBody carries request-scoped metadata attached to every error response.
type MetaBody struct {
	Timestamp        string `json:"timestamp"`
	RequestID        string `json:"request_id,omitempty"`
	DocumentationURL string `json:"documentation_url,omitempty"`
}

// DocsBaseURL is the base used to build a per-error documentation link. Left
// unset (empty) in tests and anywhere it isn't configured, in which case
// DocumentationURL is omitted.
var DocsBaseURL string

// WriteHTTP renders err as the standard JSON error envelope and writes it to
// w with the status code the error's taxonomy entry maps to. A plain error
// that doesn't wrap an *Error is rendered as CodeInternal.
func WriteHTTP(w http.ResponseWriter, err error, requestID string) {
	appErr := As(err)
	if appErr == nil {
		appErr = Wrap(CodeInternal, "internal error", err)
	}

	meta := MetaBody{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	}
	if DocsBaseURL != "" {
		meta.DocumentationURL = DocsBaseURL + "/errors/" + strconv.Itoa(int(appErr.Code))
	}

	body := Envelope{
		Error: ErrorBody{
			Code:      appErr.Code,
			ErrorCode: appErr.Code.String(),
			Category:  string(appErr.Code.Category()),
			Message:   appErr.Message,
			Details:   appErr.Details,
			Field:     appErr.Field,
		},
		Meta: meta,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(body)
}

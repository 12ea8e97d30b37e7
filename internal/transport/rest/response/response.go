package response

import (
	"encoding/json"
	"net/http"
)

// Envelope is the success envelope:
// {"ok":true,"data":...}
// Beacon callers only look at the ok flag.
type Envelope struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// ErrorBody is the failure envelope:
// {"ok":false,"error":{"code":"...","message":"...","request_id":"..."}}
type ErrorBody struct {
	OK    bool         `json:"ok"`
	Error ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// JSON writes raw JSON with Content-Type.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK wraps payload with {"ok":true,"data":...}
func OK(w http.ResponseWriter, status int, payload any) {
	JSON(w, status, Envelope{OK: true, Data: payload})
}

// Fail writes the error body.
func Fail(w http.ResponseWriter, status int, code, message, requestID string) {
	JSON(w, status, ErrorBody{
		Error: ErrorPayload{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	})
}

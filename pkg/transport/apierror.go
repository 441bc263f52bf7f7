package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// APIError is the error payload a service returned with a non-success status
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("remote error %d (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote error (HTTP %d): %s", e.StatusCode, e.Message)
}

// errorPayload covers the shapes used by TurtleCoind and wallet-api:
//
//	{"error": {"code": 1, "message": "..."}}
//	{"error": "..."}
//	{"errorCode": 1, "errorMessage": "..."}
type errorPayload struct {
	Error        json.RawMessage `json:"error"`
	ErrorCode    *int            `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
}

type nestedError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func parseErrorPayload(raw []byte) (*APIError, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}

	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}

	if payload.ErrorCode != nil || payload.ErrorMessage != "" {
		apiErr := &APIError{Message: payload.ErrorMessage}
		if payload.ErrorCode != nil {
			apiErr.Code = *payload.ErrorCode
		}
		return apiErr, true
	}

	if len(payload.Error) == 0 || bytes.Equal(payload.Error, []byte("null")) {
		return nil, false
	}

	switch payload.Error[0] {
	case '{':
		var nested nestedError
		if err := json.Unmarshal(payload.Error, &nested); err != nil {
			return nil, false
		}
		return &APIError{Code: nested.Code, Message: nested.Message}, true
	case '"':
		var msg string
		if err := json.Unmarshal(payload.Error, &msg); err != nil {
			return nil, false
		}
		return &APIError{Message: msg}, true
	}

	return nil, false
}

// Package response holds the JSON envelopes served by the local API.
package response

// APIResponse wraps a successful result. The browser console checks
// Success before reading Data.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

func OK[T any](message string, data T) *APIResponse[T] {
	return &APIResponse[T]{Success: true, Message: message, Data: data}
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

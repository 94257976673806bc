// Package types holds the wire envelopes every API response uses. Success
// bodies nest under "data", failures under "error", so clients can branch on
// shape without inspecting status codes.
package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-facing error shape. Code is a stable machine string
// ("insufficient_credits", "validation_failed"); Message is for humans.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

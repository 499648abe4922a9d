// Package types holds the wire envelopes shared by every endpoint. Booking
// and payment handlers never write bare payloads; clients always get either
// {"data": ...} or {"error": {...}}.
package types

// SuccessEnvelope wraps every 2xx body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-facing error shape. Code is the stable machine
// string (e.g. STATE_CONFLICT for a settled reservation); Details carries
// field-level context only for codes that allow it.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every non-2xx body.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

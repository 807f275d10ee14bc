// Package model defines the wire types exchanged with the Taplinks REST API.
//
// Every successful response is wrapped in a Response envelope and every
// failure in an ErrorResponse envelope. Optional fields are pointers tagged
// omitempty so that nulls are left out when encoding request bodies.
package model

// Response is the success envelope: {"meta": {...}, "data": T}.
type Response[T any] struct {
	Meta map[string]string `json:"meta,omitempty"`
	Data T                 `json:"data"`
}

// ErrorObject describes a failed request as reported by the server.
type ErrorObject struct {
	StatusCode       int               `json:"statusCode"`
	Message          string            `json:"message"`
	LocalizedMessage *string           `json:"localizedMessage,omitempty"`
	ErrorName        string            `json:"errorName"`
	Details          map[string]string `json:"details,omitempty"`
	Path             string            `json:"path"`
	RequestID        string            `json:"requestId"`
	Timestamp        string            `json:"timestamp"`
}

// ErrorResponse is the failure envelope: {"error": {...}}.
type ErrorResponse struct {
	Error ErrorObject `json:"error"`
}

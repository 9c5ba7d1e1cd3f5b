package types

// SuccessEnvelope wraps every successful response body so clients can rely
// on a single top-level shape.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error shape. Details is populated only for codes
// whose metadata allows it.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps an APIError for failed responses.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

package handlers

const (
	ContentTypeJSON = "application/json"
	HeaderRequestID = "X-Request-ID"

	MaxBodyBytes = 1 << 20

	ErrInternalServerError = "Internal server error"
	ErrOracleUnavailable   = "The element oracle is unavailable, try again in a moment"
)

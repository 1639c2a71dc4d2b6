package core

// Error codes for domain errors surfaced on the wire.
const (
	ErrCodeBadPayload    = "bad_payload"
	ErrCodeUnknownAction = "unknown_action"
	ErrCodeMissingTarget = "missing_target"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

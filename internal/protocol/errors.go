package protocol

// Error is a protocol-level failure class. Wrap with fmt.Errorf("...: %w")
// and test with errors.Is.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrResolution         Error = "target not found"
	ErrTimeout            Error = "timed out waiting for response"
	ErrSessionMissing     Error = "no session id available for session isolation"
	ErrUnknownFunction    Error = "unknown function"
	ErrTransport          Error = "transport failure"
	ErrNavigationRejected Error = "navigation rejected"
	ErrInvalidParams      Error = "invalid parameters"
	ErrNoFunctionName     Error = "tool call has no function name"
)

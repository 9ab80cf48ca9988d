package chat

import "errors"

// Error kinds surfaced by the chat service. Returned errors wrap one of these
// together with a human-readable detail, so callers classify with errors.Is
// and may show err.Error() for validation and not-found failures.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrStorage    = errors.New("storage failure")
)

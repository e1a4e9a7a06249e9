package protocol

// Rule-layer outcome codes. They travel on Messages, never as Go errors.
const (
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrConflict      = "E_CONFLICT"
	ErrBlocked       = "E_BLOCKED"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:    {},
	ErrNoResource:    {},
	ErrInvalidTarget: {},
	ErrRateLimit:     {},
	ErrConflict:      {},
	ErrBlocked:       {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

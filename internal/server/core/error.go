package core

// Error codes
const (
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrInvalidMove       = "INVALID_MOVE"
	ErrGameOver          = "GAME_OVER"
	ErrStaleState        = "STALE_STATE"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrAuthNotConfigured = "AUTH_NOT_CONFIGURED"
	ErrEngineError       = "ENGINE_ERROR"
	ErrPersistenceFailed = "PERSISTENCE_FAILED"
	ErrRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrInvalidContent    = "INVALID_CONTENT_TYPE"
	ErrNotFound          = "NOT_FOUND"
	ErrInternalError     = "INTERNAL_ERROR"
)

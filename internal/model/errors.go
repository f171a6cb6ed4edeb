package model

import "errors"

// Error taxonomy. Each sentinel is wrapped with
// fmt.Errorf("...: %w", ErrX) at the call site so errors.Is still
// matches while the message carries the offending detail (the pattern
// the corpus uses for user.ErrUserNotFound / collab.ErrRevisionConflict).
var (
	ErrInvalidMessage          = errors.New("invalid message")
	ErrSessionNotFound         = errors.New("session not found")
	ErrOperationDenied         = errors.New("operation denied: document not subscribed")
	ErrRateLimited             = errors.New("rate limit exceeded")
	ErrVersionConflict         = errors.New("version conflict")
	ErrOperationApply          = errors.New("operation apply failed")
	ErrOperationTransform      = errors.New("operation transform failed")
	ErrInvalidCursorPosition   = errors.New("invalid cursor position")
	ErrCollaborationDisabled   = errors.New("editor not initialized")
	ErrOperationBatchValidation = errors.New("operation batch validation failed")
	ErrWebSocketAuthentication = errors.New("websocket authentication failed")
)

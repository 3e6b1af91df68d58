package service

import "errors"

// Error taxonomy for engine operations. Local validation errors are raised
// before any state mutation; ErrTransportFailure is the one error that can
// surface after an optimistic mutation already happened (the engine rolls
// it back before returning).
var (
	ErrSessionExpired   = errors.New("session has expired")
	ErrSessionFull      = errors.New("session is full")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrConflictRejected = errors.New("local change rejected by conflict resolution")
	ErrTransportFailure = errors.New("broadcast send failed")
)

package service

import "errors"

// Sentinel errors returned by the session manager.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrNotStarted      = errors.New("service not started")
	ErrQueueFull       = errors.New("sync queue full")
)

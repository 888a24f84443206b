package session

import "errors"

// ErrClosed is returned by every entry point after Close.
var ErrClosed = errors.New("session closed")

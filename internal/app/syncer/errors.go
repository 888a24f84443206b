package syncer

import "errors"

var (
	// ErrSyncFailed wraps every network or store failure of a sync.
	ErrSyncFailed = errors.New("sync failed")
	// ErrSyncSuperseded is returned when a newer sync completed first and
	// this result was discarded.
	ErrSyncSuperseded = errors.New("sync superseded")
)

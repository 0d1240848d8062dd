package queue

import "errors"

// Sentinel errors for the export queue service layer.
var (
	ErrUnknownDestination = errors.New("unknown destination")
	ErrNotFound           = errors.New("export not found")
	ErrSendInProgress     = errors.New("another send pass holds the destination lock")
)

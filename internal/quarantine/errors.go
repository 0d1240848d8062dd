package quarantine

import "errors"

// Sentinel errors for the quarantine service layer.
var (
	ErrLoadNotFound = errors.New("load not found")
)

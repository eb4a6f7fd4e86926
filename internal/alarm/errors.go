package alarm

import "errors"

// Store errors.
var (
	ErrAlarmNotFound = errors.New("alarm not found")
	ErrMetaNotFound  = errors.New("metadata entry not found")
)

// Engine errors.
var (
	ErrUnknownMessage = errors.New("unknown message type")
)

package scan

import "errors"

var (
	ErrInvalidRange  = errors.New("invalid nonce range")
	ErrInvalidTarget = errors.New("invalid scan target")
	ErrInvalidSeeds  = errors.New("server and client seeds are required")
	ErrTimeout       = errors.New("scan timed out")
	ErrClosed        = errors.New("scanner closed")
)

package wheel

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is the root of every input error returned by this package.
var ErrInvalidArgument = errors.New("invalid argument")

var (
	ErrInvalidSegmentCount  = fmt.Errorf("%w: segment count must be a positive integer", ErrInvalidArgument)
	ErrInvalidTier          = fmt.Errorf("%w: unrecognized difficulty tier", ErrInvalidArgument)
	ErrEmptyMultiplierTable = fmt.Errorf("%w: tier has no non-zero multipliers", ErrInvalidArgument)
	ErrInvalidLength        = fmt.Errorf("%w: wheel length must be a positive integer", ErrInvalidArgument)
)

// ErrInvalidWheel is returned by Validate when a segment list breaks a wheel invariant.
var ErrInvalidWheel = errors.New("invalid wheel")

package roistats

import "errors"

// ErrShapeMismatch is returned when the measurement and label volumes do not
// share an identical index space.
var ErrShapeMismatch = errors.New("measurement and label volumes have different shapes")

// ErrInvalidParameter is returned when an analysis parameter is outside its
// valid domain.
var ErrInvalidParameter = errors.New("invalid analysis parameter")

package deck

import "errors"

// ErrInsufficientCards is returned when the pool cannot cover the initial deal
// plus the opening discard.
var ErrInsufficientCards = errors.New("not enough cards to deal")

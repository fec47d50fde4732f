package chunklevel

import "errors"

// ErrTooLarge indicates a size request larger than the root chunk size.
var ErrTooLarge = errors.New("chunklevel: request exceeds root chunk size")

package exercise

import "errors"

var ErrInvalidSeed = errors.New("invalid exercise seed file")

package roles

import "errors"

var ErrUnknownPolicy = errors.New("unknown role policy: must be 'independent' or 'single_mentor'")

package paramspace

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig reports an invalid declaration or limit.
	ErrConfig = errors.New("invalid scan configuration")

	// ErrBadRange reports a range with non-positive steps. It wraps ErrConfig.
	ErrBadRange = fmt.Errorf("%w: bad range", ErrConfig)

	// ErrEmptySpace reports that limits left no configuration to run.
	ErrEmptySpace = errors.New("parameter space is empty")
)

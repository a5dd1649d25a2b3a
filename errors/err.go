package errors

import (
	"fmt"
)

var (
	ErrInvalidConfig      = fmt.Errorf("duet: invalid config")
	ErrNotFound           = fmt.Errorf("duet: not found")
	ErrGenerationTimeout  = fmt.Errorf("duet: generation timeout")
	ErrBackendUnavailable = fmt.Errorf("duet: backend unavailable")
	ErrPersistence        = fmt.Errorf("duet: persistence failure")
	ErrInvalidDirective   = fmt.Errorf("duet: invalid directive")
)

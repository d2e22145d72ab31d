package histogram

import (
	"errors"
	"fmt"
)

// ErrConfig is returned for malformed axis or store parameters.
var ErrConfig = errors.New("invalid histogram configuration")

// ErrNotFound is returned when a load target file or a save target
// directory does not exist.
var ErrNotFound = errors.New("not found")

// UnknownModelError is returned when a loaded archive names a fit model
// that is not registered in this build.
type UnknownModelError struct {
	Name string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown fit model %q", e.Name)
}

package mutate

import (
	"errors"
	"fmt"
)

// ErrNoPlan is returned when a mutation is requested before any plan was loaded.
var ErrNoPlan = errors.New("no plan loaded")

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

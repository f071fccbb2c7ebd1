package rowbind

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// ErrEmptySource is returned by ConstructOne when the row source yields no
// rows at all. ConstructMany treats the same condition as an empty result.
var ErrEmptySource = errors.New("rowbind: row source yielded no rows")

// ConflictError reports a mapping value type or sequence element type that
// is itself record-, mapping- or sequence-shaped. Such an element has no
// unambiguous column range and is rejected wherever it is first met.
type ConflictError struct {
	Container reflect.Type // the mapping or sequence type
	Elem      reflect.Type // the offending aggregate element/value type
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("rowbind: %s: aggregate-shaped element type %s cannot occupy a single column range",
		e.Container, e.Elem)
}

func conflict(container, elem *Shape) error {
	return &ConflictError{Container: container.Type, Elem: elem.Type}
}
